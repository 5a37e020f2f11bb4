package notifier

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Dummy logs instead of delivering, for deployments without a configured channel.
type Dummy struct {
	log *logrus.Entry
}

func NewDummy(log *logrus.Logger) *Dummy {
	return &Dummy{
		log: log.WithField("component", "notifier"),
	}
}

func (n *Dummy) Notify(_ context.Context, recipient, template string, data map[string]string) error {
	n.log.Infof("notifying %s with %s: %v", recipient, template, data)
	return nil
}
