package service

import (
	"os"
	"testing"

	"TG_group_guardian/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize("error", ""); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}
