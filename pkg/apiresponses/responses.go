/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apiresponses

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// APIError is the body of every admin API error response.
type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// RespondInternalError logs err and answers 500 with a sanitized message.
func RespondInternalError(c *gin.Context, operation string, err error, log *zap.SugaredLogger) {
	if log != nil {
		log.Errorw(fmt.Sprintf("Failed to %s", operation), "error", err)
	}
	c.JSON(http.StatusInternalServerError, APIError{
		Error: fmt.Sprintf("failed to %s", operation),
		Code:  "INTERNAL_ERROR",
	})
}

// RespondServiceUnavailable answers 503 when a backend such as the mail queue is down.
func RespondServiceUnavailable(c *gin.Context, service string) {
	c.JSON(http.StatusServiceUnavailable, APIError{
		Error: fmt.Sprintf("service unavailable: %s", service),
		Code:  "SERVICE_UNAVAILABLE",
	})
}

func RespondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}
