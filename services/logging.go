package services

import "github.com/sirupsen/logrus"

// newServiceLogger is the logger a service uses when none is injected
func newServiceLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logger
}
