package listener

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/trivago/n2k-gateway/blacklist"
)

func TestNewSocketDefaultsToOneWorker(t *testing.T) {
	bl, _ := blacklist.New(nil)
	s := NewSocket(nil, nil, bl, 0, logrus.StandardLogger())
	if s.NumWorkers != 1 {
		t.Fatalf("NumWorkers = %d, want 1", s.NumWorkers)
	}
	if len(s.workers) != 1 {
		t.Fatalf("len(workers) = %d, want 1", len(s.workers))
	}
}

func TestNewSocketWorkerCount(t *testing.T) {
	bl, _ := blacklist.New(nil)
	s := NewSocket(nil, nil, bl, 4, logrus.StandardLogger())
	if len(s.workers) != 4 {
		t.Fatalf("len(workers) = %d, want 4", len(s.workers))
	}
}
