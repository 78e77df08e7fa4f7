package clients

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// leveledLogrus adapts logrus to retryablehttp. Intermediate request errors are
// logged as warnings because they are retried.
type leveledLogrus struct {
	entry *logrus.Entry
}

func (l leveledLogrus) fields(keysAndValues []interface{}) *logrus.Entry {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if k, ok := keysAndValues[i].(string); ok {
			f[k] = keysAndValues[i+1]
		}
	}
	return l.entry.WithFields(f)
}

func (l leveledLogrus) Error(msg string, keysAndValues ...interface{}) {
	l.fields(keysAndValues).Warn(msg)
}

func (l leveledLogrus) Warn(msg string, keysAndValues ...interface{}) {
	l.fields(keysAndValues).Warn(msg)
}

func (l leveledLogrus) Info(msg string, keysAndValues ...interface{}) {
	l.fields(keysAndValues).Debug(msg)
}

func (l leveledLogrus) Debug(msg string, keysAndValues ...interface{}) {
	l.fields(keysAndValues).Debug(msg)
}

// NewHTTPClient returns a stdlib-compatible client that retries connection
// errors, 5xx and 429 responses up to retries times. The final response is
// passed through so XRPC error bodies can still be decoded.
func NewHTTPClient(retries int, timeout time.Duration) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 10 * time.Second
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = retryablehttp.LeveledLogger(leveledLogrus{logrus.WithField("component", "http")})

	client := rc.StandardClient()
	client.Timeout = timeout
	return client
}
