package metrics

import (
  "github.com/prometheus/client_golang/prometheus"
)

var (
  // Fetch metrics
  FetchCounter = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "pipeline_fetch_archives_total",
      Help: "Total session archives downloaded",
    })
  FetchErrors = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "pipeline_fetch_errors_total",
      Help: "Archive download or unpack errors",
    })
  FetchBytes = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "pipeline_fetch_bytes_total",
      Help: "Bytes of archive payload downloaded",
    })
  FetchLatency = prometheus.NewHistogram(
    prometheus.HistogramOpts{
      Name:    "pipeline_fetch_latency_seconds",
      Help:    "Time to download one archive",
      Buckets: prometheus.DefBuckets,
    })

  // Extract metrics
  ExtractElements = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "pipeline_extract_elements_total",
      Help: "Price-report elements found, by namespace",
    },
    []string{"namespace"},
  )
  ExtractErrors = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "pipeline_extract_parse_failures_total",
      Help: "Documents that could not be parsed",
    })
  ExtractLatency = prometheus.NewHistogram(
    prometheus.HistogramOpts{
      Name:    "pipeline_extract_latency_seconds",
      Help:    "Time to extract one document",
      Buckets: prometheus.DefBuckets,
    })

  // Normalize metrics
  NormalizeCounter = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "pipeline_normalize_admitted_total",
      Help: "Total records admitted by normalization",
    })
  NormalizeRejections = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "pipeline_normalize_rejections_total",
      Help: "Records rejected by normalization",
    },
    []string{"reason"},
  )
  NormalizeCoercionWarnings = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "pipeline_normalize_coercion_warnings_total",
      Help: "Fields whose text could not be converted",
    },
    []string{"field"},
  )

  // Load metrics
  LoadRows = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "pipeline_load_rows_total",
      Help: "Rows affected by the load coordinator",
    },
    []string{"policy"},
  )
  LoadChunks = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "pipeline_load_chunks_total",
      Help: "Chunks committed or rolled back",
    },
    []string{"policy", "status"},
  )
  LoadLatency = prometheus.NewHistogram(
    prometheus.HistogramOpts{
      Name:    "pipeline_load_latency_seconds",
      Help:    "Time to load one document",
      Buckets: prometheus.DefBuckets,
    })

  // Redis metrics
  RedisOperationDuration = prometheus.NewHistogramVec(
    prometheus.HistogramOpts{
      Name:    "redis_operation_duration_seconds",
      Help:    "Redis operation duration",
      Buckets: prometheus.DefBuckets,
    },
    []string{"operation", "status"},
  )
  RedisErrors = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "redis_errors_total",
      Help: "Total Redis errors",
    },
    []string{"operation"},
  )

  // Database metrics
  DatabaseHealthCheckDuration = prometheus.NewHistogram(
    prometheus.HistogramOpts{
      Name:    "database_health_check_duration_seconds",
      Help:    "Database health check duration",
      Buckets: prometheus.DefBuckets,
    })
  DatabaseHealthCheckSuccess = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "database_health_check_success_total",
      Help: "Total successful database health checks",
    })
  DatabaseHealthCheckErrors = prometheus.NewCounter(
    prometheus.CounterOpts{
      Name: "database_health_check_errors_total",
      Help: "Total database health check errors",
    })
  DatabaseOperationDuration = prometheus.NewHistogramVec(
    prometheus.HistogramOpts{
      Name:    "database_operation_duration_seconds",
      Help:    "Database operation duration",
      Buckets: prometheus.DefBuckets,
    },
    []string{"operation", "status"},
  )
  DatabaseOperations = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "database_operations_total",
      Help: "Total database operations",
    },
    []string{"operation", "status"},
  )
  DatabaseErrors = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "database_errors_total",
      Help: "Total database errors",
    },
    []string{"operation"},
  )
)

func init() {
  // MustRegister panics if registration fails (e.g. duplicate)
  prometheus.MustRegister(
    FetchCounter, FetchErrors, FetchBytes, FetchLatency,
    ExtractElements, ExtractErrors, ExtractLatency,
    NormalizeCounter, NormalizeRejections, NormalizeCoercionWarnings,
    LoadRows, LoadChunks, LoadLatency,
    RedisOperationDuration, RedisErrors,
    DatabaseHealthCheckDuration, DatabaseHealthCheckSuccess, DatabaseHealthCheckErrors,
    DatabaseOperationDuration, DatabaseOperations, DatabaseErrors,
  )
}

// Status maps an error to the "success"/"error" label value.
func Status(err error) string {
  if err != nil {
    return "error"
  }
  return "success"
}
