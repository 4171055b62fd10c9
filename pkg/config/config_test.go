package config

import (
    "os"
    "reflect"
    "testing"
    "time"
)

var fixedNow = time.Date(2025, 9, 23, 18, 0, 0, 0, time.UTC)

func TestLoad_Defaults(t *testing.T) {
    for _, k := range []string{"DATABASE_URL", "MERGE_POLICY", "BATCH_SIZE", "NAMESPACES", "SESSION_DATE", "REDIS_URL"} {
        os.Unsetenv(k)
    }

    cfg, err := load(nil, fixedNow)
    if err != nil {
        t.Fatalf("expected no error, got %v", err)
    }
    if cfg.MergePolicy != "append" {
        t.Errorf("MergePolicy = %q; want %q", cfg.MergePolicy, "append")
    }
    if cfg.BatchSize != 1000 {
        t.Errorf("BatchSize = %d; want 1000", cfg.BatchSize)
    }
    wantNS := []string{Namespace052, Namespace217}
    if !reflect.DeepEqual(cfg.Namespaces, wantNS) {
        t.Errorf("Namespaces = %v; want %v", cfg.Namespaces, wantNS)
    }
    if got := cfg.DocumentName(); got != "BVBG186_250923.xml" {
        t.Errorf("DocumentName = %q", got)
    }
    if got := cfg.ArchiveURLFor(); got != "https://www.b3.com.br/pesquisapregao/download?filelist=SPRE250923.zip" {
        t.Errorf("ArchiveURLFor = %q", got)
    }
    if err := cfg.RequireDatabase(); err == nil {
        t.Error("expected RequireDatabase error without DATABASE_URL")
    }
}

func TestLoad_EnvAndFlags(t *testing.T) {
    t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5433/cotacoes_b3?sslmode=disable")
    t.Setenv("MERGE_POLICY", "UPSERT")
    t.Setenv("NAMESPACES", " urn:bvmf.217.01.xsd , ")

    cfg, err := load([]string{"-batch", "250", "-date", "251006", "-ticker", " petr4 ", "-test.v"}, fixedNow)
    if err != nil {
        t.Fatalf("expected no error, got %v", err)
    }
    if cfg.MergePolicy != "upsert" {
        t.Errorf("MergePolicy = %q; want upsert", cfg.MergePolicy)
    }
    if cfg.BatchSize != 250 {
        t.Errorf("BatchSize = %d; want 250", cfg.BatchSize)
    }
    if !reflect.DeepEqual(cfg.Namespaces, []string{Namespace217}) {
        t.Errorf("Namespaces = %v", cfg.Namespaces)
    }
    if cfg.Ticker != "PETR4" {
        t.Errorf("Ticker = %q; want PETR4", cfg.Ticker)
    }
    if cfg.DocumentName() != "BVBG186_251006.xml" {
        t.Errorf("DocumentName = %q", cfg.DocumentName())
    }
    if err := cfg.RequireDatabase(); err != nil {
        t.Errorf("RequireDatabase: %v", err)
    }
}

func TestLoad_Invalid(t *testing.T) {
    cases := []struct {
        name string
        env  map[string]string
        args []string
    }{
        {name: "bad policy", env: map[string]string{"MERGE_POLICY": "merge"}},
        {name: "zero batch", args: []string{"-batch", "0"}},
        {name: "bad date", args: []string{"-date", "2025-09-23"}},
        {name: "bad namespace", env: map[string]string{"NAMESPACES": "bvmf.217"}},
        {name: "archive url without verb", env: map[string]string{"ARCHIVE_URL": "https://example.com/file.zip"}},
        {name: "unknown flag", args: []string{"-nope"}},
    }
    for _, c := range cases {
        t.Run(c.name, func(t *testing.T) {
            for k, v := range c.env {
                t.Setenv(k, v)
            }
            if _, err := load(c.args, fixedNow); err == nil {
                t.Fatal("expected error, got nil")
            }
        })
    }
}

func TestSplitAndTrim(t *testing.T) {
    in := " a , ,b ,c"
    got := splitAndTrim(in, ",")
    want := []string{"a", "b", "c"}
    if !reflect.DeepEqual(got, want) {
        t.Errorf("splitAndTrim = %v; want %v", got, want)
    }
}
