// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package system

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Debug mode uses the development encoder
// and debug level, otherwise the production JSON encoder is used.
func NewLogger(debug bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zlog, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return zlog.Sugar(), nil
}

// IssueFields returns key/value pairs identifying an issue, suitable for
// passing to SugaredLogger.With or Infow/Errorw calls. An empty key is omitted.
func IssueFields(id int64, key string) []interface{} {
	if key == "" {
		return []interface{}{"issueID", id}
	}
	return []interface{}{"issueID", id, "issueKey", key}
}
