package remitlib

import "github.com/sirupsen/logrus"

var log *logrus.Logger

func init() {
	log = logrus.New()
}

func SetLevel(l logrus.Level) {
	log.SetLevel(l)
}

// SetLogger makes remitlib log through l. Call it before starting any payment.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}
