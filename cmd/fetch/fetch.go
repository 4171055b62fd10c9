package main

import (
    "context"
    "fmt"

    "github.com/alim08/fin_quotes/pkg/archive"
    "github.com/alim08/fin_quotes/pkg/config"
    "github.com/alim08/fin_quotes/pkg/logger"
    "github.com/alim08/fin_quotes/pkg/staging"
    "go.uber.org/zap"
)

// fetchSession downloads the archive of cfg.SessionDate and stages its
// document under cfg.DocumentName(). It returns the staged name.
func fetchSession(ctx context.Context, cfg *config.Config, fetcher *archive.Fetcher, store staging.DocumentStore) (string, error) {
    url := cfg.ArchiveURLFor()
    data, err := fetcher.Download(ctx, url)
    if err != nil {
        return "", fmt.Errorf("download %s: %w", url, err)
    }

    docs, err := archive.Unpack(data)
    if err != nil {
        return "", fmt.Errorf("unpack %s: %w", url, err)
    }
    doc, err := archive.Select(docs, cfg.FilePrefix)
    if err != nil {
        return "", err
    }
    if len(docs) > 1 {
        logger.Log.Info("archive holds several documents",
            zap.Int("count", len(docs)),
            zap.String("selected", doc.Name))
    }

    name := cfg.DocumentName()
    if err := store.Put(ctx, name, doc.Data); err != nil {
        return "", err
    }
    return name, nil
}
