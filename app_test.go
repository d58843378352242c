package main

import "testing"

import "github.com/trivago/n2k-gateway/config"

func TestStartListenerRejectsUnknownProto(t *testing.T) {
	a := &App{}
	_, err := a.startListener(config.ListenerConfig{Proto: "carrier-pigeon", Port: 9999}, nil)
	if err == nil {
		t.Fatalf("expected error for unknown proto")
	}
}
