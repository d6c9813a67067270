package notify

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// StartDrainer drains source into dispatcher on a cron schedule, e.g. "@every 10s".
// Stop the returned scheduler to end draining.
func StartDrainer(spec string, source Drainer, dispatcher *Dispatcher, logger logrus.FieldLogger) (*cron.Cron, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		n, err := source.Drain(context.Background(), dispatcher.Dispatch)
		if err != nil {
			logger.WithError(err).Error("notification drain failed")
			return
		}
		if n > 0 {
			logger.WithField("count", n).Info("notifications drained")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid drain schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
