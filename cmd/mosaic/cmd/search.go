package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mosaic/internal/app"
	mosaicerrors "github.com/Aman-CERP/mosaic/internal/errors"
	"github.com/Aman-CERP/mosaic/internal/output"
)

// searchOptions holds the CLI flags of search.
type searchOptions struct {
	index    string
	lang     string
	ranking  string
	limit    int
	page     int
	fullText bool
	keyword  string
	bbox     string
	operator string
	format   string // "text", "json", "xml"
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexes",
		Long: `Search every index, or one with --index, and print one page of results.

The query uses the same syntax and filters as the /search endpoint.`,
		Example: `  mosaic search "climate change"
  mosaic search zebra --index news --lang en --limit 5 --page 2
  mosaic search "*:*" --keyword energy --format json
  mosaic search city --bbox 5.9,47.3,10.5,54.9 --operator and`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, g, strings.Join(args, " "), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.index, "index", "i", "", "Search only this index")
	f.StringVarP(&opts.lang, "lang", "l", "", "Filter by document language")
	f.StringVar(&opts.ranking, "ranking", "", "Re-rank each index by word count: asc, desc")
	f.IntVarP(&opts.limit, "limit", "n", 0, "Results per index and page (default from config)")
	f.IntVarP(&opts.page, "page", "p", 0, "Page number, starting at 1")
	f.BoolVar(&opts.fullText, "fulltext", false, "Choose snippets from the full document text")
	f.StringVarP(&opts.keyword, "keyword", "k", "", "Filter by keyword")
	f.StringVar(&opts.bbox, "bbox", "", "Bounding box west,south,east,north")
	f.StringVar(&opts.operator, "operator", "", "Bounding box operator: or, and")
	f.StringVarP(&opts.format, "format", "f", "text", "Output format: text, json, xml")

	return cmd
}

// params turns the flags into the query parameters of /search.
func (o searchOptions) params(q string) (url.Values, error) {
	v := url.Values{}
	v.Set("q", q)
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("index", o.index)
	set("lang", o.lang)
	set("ranking", o.ranking)
	set("keyword", o.keyword)
	set("operator", o.operator)
	if o.limit != 0 {
		v.Set("limit", strconv.Itoa(o.limit))
	}
	if o.page != 0 {
		v.Set("pw", strconv.Itoa(o.page))
	}
	if o.fullText {
		v.Set("fulltext", "true")
	}

	if o.bbox != "" {
		parts := strings.Split(o.bbox, ",")
		if len(parts) != 4 {
			return nil, mosaicerrors.ValidationError(
				fmt.Sprintf("--bbox needs west,south,east,north, got %q", o.bbox))
		}
		for i, key := range []string{"west", "south", "east", "north"} {
			v.Set(key, strings.TrimSpace(parts[i]))
		}
	}
	return v, nil
}

func runSearch(ctx context.Context, cmd *cobra.Command, g *globalOptions, q string, opts searchOptions) error {
	switch opts.format {
	case "text", "json", "xml":
	default:
		return mosaicerrors.ValidationError(fmt.Sprintf("unknown format %q, want text, json or xml", opts.format))
	}
	raw, err := opts.params(q)
	if err != nil {
		return err
	}

	a, closeApp, err := g.openApp(ctx, cmd, "warn")
	if err != nil {
		return err
	}
	defer closeApp()

	a.Logger.Debug("search_started", slog.String("query", q), slog.String("format", opts.format))
	ans, err := a.Search(ctx, raw, opts.format)
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		body, err := a.Assembler.JSON(ans.Response, ans.Request)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(body))
		return err
	case "xml":
		body, err := a.Assembler.Feed(ans.Response, ans.Request)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(body))
		return err
	default:
		printHits(output.New(cmd.OutOrStdout()), ans)
		return nil
	}
}

func printHits(out *output.Writer, ans *app.Answer) {
	results := ans.Response.Results()
	if len(results) == 0 {
		out.Warning(fmt.Sprintf("No results for %q", ans.Request.Query))
		return
	}

	rank := (ans.Request.Page-1)*ans.Request.Limit + 1
	for _, ir := range ans.Response.Indexes {
		for i, res := range ir.Results {
			out.Hit(rank+i, output.Hit{
				Index:   ir.Index,
				ID:      res.ID,
				Title:   res.Row["title"],
				URL:     res.Row["url"],
				Snippet: res.Snippet,
			})
		}
	}
	out.Newline()
	out.Statusf("📊", "%d results on page %d, %d matches in total",
		len(results), ans.Request.Page, ans.Response.TotalHits())
}
