// Command articlectl runs article commands and queries against the
// configured stores. The memory backend does not outlive one invocation, so
// point it at postgres or dynamodb for anything but a smoke test.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/article-cqrs/internal/app"
	"github.com/example/article-cqrs/internal/command"
	"github.com/example/article-cqrs/internal/config"
	"github.com/example/article-cqrs/internal/logging"
	"github.com/example/article-cqrs/internal/readmodel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const usage = `usage: articlectl [-config file] <command> [flags]

commands:
  create    -title T [-description D] [-short S] [-id UUID]
  update    -id UUID -title T [-description D] [-short S]
  publish   -id UUID
  unpublish -id UUID
  archive   -id UUID
  delete    -id UUID
  get       -id UUID
  slug      -slug S
  list      [-status S] [-limit N]
  rebuild
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "articlectl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	global := flag.NewFlagSet("articlectl", flag.ContinueOnError)
	configPath := global.String("config", "", "path to a YAML config file")
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	// one-shot runs project in process and never forward to Kafka
	cfg.Projection.InProcess = true
	cfg.Kafka.Enabled = false
	log := logging.New(cfg.Log).With().Str("service", "articlectl").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	name, rest := global.Arg(0), global.Args()[1:]
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	id := fs.String("id", "", "article id")
	title := fs.String("title", "", "article title")
	description := fs.String("description", "", "article body")
	short := fs.String("short", "", "short description")
	slug := fs.String("slug", "", "article slug")
	status := fs.String("status", "", "status filter")
	limit := fs.Int("limit", 0, "maximum number of articles")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	switch name {
	case "create":
		newID, err := a.Commands.CreateArticle(ctx, command.CreateArticle{
			ArticleID:        *id,
			Title:            *title,
			Description:      *description,
			ShortDescription: *short,
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, newID)
		return err
	case "update":
		return a.Commands.UpdateArticle(ctx, command.UpdateArticle{
			ArticleID:        *id,
			Title:            *title,
			Description:      *description,
			ShortDescription: *short,
		})
	case "publish":
		return a.Commands.PublishArticle(ctx, command.PublishArticle{ArticleID: *id})
	case "unpublish":
		return a.Commands.UnpublishArticle(ctx, command.UnpublishArticle{ArticleID: *id})
	case "archive":
		return a.Commands.ArchiveArticle(ctx, command.ArchiveArticle{ArticleID: *id})
	case "delete":
		return a.Commands.DeleteArticle(ctx, command.DeleteArticle{ArticleID: *id})
	case "get":
		articleID, err := uuid.Parse(*id)
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", *id, err)
		}
		article, err := a.Queries.GetArticle(ctx, articleID)
		if err != nil {
			return err
		}
		return printJSON(out, article.ToMap())
	case "slug":
		article, err := a.Queries.FindArticleBySlug(ctx, *slug)
		if err != nil {
			return err
		}
		return printJSON(out, article.ToMap())
	case "list":
		articles, err := a.Queries.ListArticles(ctx, *status, *limit)
		if err != nil {
			return err
		}
		return printJSON(out, toMaps(articles))
	case "rebuild":
		n, err := a.Rebuild(ctx)
		fmt.Fprintf(out, "replayed %d events\n", n)
		return err
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", name)
	}
}

func toMaps(articles []*readmodel.Article) []map[string]any {
	rows := make([]map[string]any, 0, len(articles))
	for _, a := range articles {
		rows = append(rows, a.ToMap())
	}
	return rows
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

