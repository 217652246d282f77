package middleware

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"crm-service/internal/tenantdb"
	"crm-service/pkg/logger"
)

// bufferedWriter holds the response back until the unit of work is settled.
// Headers go straight to the real header map; they are not sent before the
// status line is.
type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (w *bufferedWriter) Header() http.Header {
	return w.header
}

func (w *bufferedWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(b)
}

// Transaction runs the handler inside a unit of work and renders its response
// into a buffer. A handler error or an error status rolls the unit back;
// otherwise the unit commits, running the queued audit hooks, and only then
// is the buffered response flushed to the client.
func Transaction(store *tenantdb.Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx, unit, err := store.Begin(req.Context())
			if err != nil {
				return err
			}
			defer unit.Rollback()
			c.SetRequest(req.WithContext(ctx))

			res := c.Response()
			out := res.Writer
			buf := &bufferedWriter{header: out.Header()}
			res.Writer = buf

			reset := func() {
				res.Writer = out
				res.Committed = false
				res.Size = 0
				res.Status = http.StatusOK
			}

			if err := next(c); err != nil {
				unit.Rollback()
				reset()
				return err
			}

			if buf.status >= http.StatusBadRequest {
				unit.Rollback()
			} else if err := unit.Commit(); err != nil {
				logger.FromEcho(c).Error("Commit failed, discarding response", zap.Error(err))
				reset()
				return err
			}

			res.Writer = out
			if buf.status == 0 {
				return nil
			}
			out.WriteHeader(buf.status)
			_, err = out.Write(buf.body.Bytes())
			return err
		}
	}
}
