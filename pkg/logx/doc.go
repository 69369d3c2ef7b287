// Package logx configures postbot's structured logging.
//
// Logger is a thin wrapper over zerolog that keeps:
//   - console output readable (short timestamp + short caller)
//   - file output as JSON lines
//   - an optional chat sink for warnings (min level + rate limit)
package logx
