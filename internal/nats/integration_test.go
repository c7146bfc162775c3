//go:build integration
// +build integration

package nats

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/CodeAtlas-hq/codeatlas/internal/testutil"
)

func TestIntegration_NewClient(t *testing.T) {
	testNATS := testutil.RequireNATS(t)

	client, err := NewClient(testNATS.URL)
	if err != nil {
		t.Skipf("skipping test: could not connect to NATS: %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("client should be connected")
	}
	if client.Conn() == nil {
		t.Error("Conn() should not be nil")
	}
	if client.JetStream() == nil {
		t.Error("JetStream() should not be nil")
	}
	if err := client.HealthCheck(); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}
}

func TestIntegration_CreateStream(t *testing.T) {
	testNATS := testutil.RequireNATS(t)

	client, err := NewClient(testNATS.URL)
	if err != nil {
		t.Skipf("skipping test: could not connect to NATS: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := StreamConfig{
		Name:        "TEST_INTEGRATION_STREAM",
		Subjects:    []string{"test.integration.>"},
		MaxMsgs:     1000,
		MaxBytes:    1024 * 1024, // 1MB
		MaxAge:      1 * time.Hour,
		Description: "Integration test stream",
	}

	stream, err := client.CreateStream(ctx, cfg)
	if err != nil {
		t.Fatalf("CreateStream() error: %v", err)
	}
	if stream == nil {
		t.Fatal("CreateStream() returned nil stream")
	}

	// Cleanup: delete stream
	js := client.JetStream()
	if js != nil {
		js.DeleteStream(ctx, cfg.Name)
	}
}

func TestIntegration_CreateConsumer(t *testing.T) {
	testNATS := testutil.RequireNATS(t)

	client, err := NewClient(testNATS.URL)
	if err != nil {
		t.Skipf("skipping test: could not connect to NATS: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	streamCfg := StreamConfig{
		Name:     "TEST_CONSUMER_STREAM",
		Subjects: []string{"test.consumer.>"},
	}

	if _, err := client.CreateStream(ctx, streamCfg); err != nil {
		t.Fatalf("CreateStream() error: %v", err)
	}

	consumer, err := client.CreateConsumer(ctx, "TEST_CONSUMER_STREAM", "test-consumer", "test.consumer.jobs")
	if err != nil {
		t.Fatalf("CreateConsumer() error: %v", err)
	}
	if consumer == nil {
		t.Fatal("CreateConsumer() returned nil consumer")
	}

	// Cleanup
	js := client.JetStream()
	if js != nil {
		js.DeleteStream(ctx, streamCfg.Name)
	}
}

func TestIntegration_PublishToStream(t *testing.T) {
	testNATS := testutil.RequireNATS(t)

	client, err := NewClient(testNATS.URL)
	if err != nil {
		t.Skipf("skipping test: could not connect to NATS: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	streamCfg := StreamConfig{
		Name:     "TEST_PUBSUB_STREAM",
		Subjects: []string{"test.pubsub.>"},
	}

	if _, err := client.CreateStream(ctx, streamCfg); err != nil {
		t.Fatalf("CreateStream() error: %v", err)
	}

	testData := []byte(`{"job_id": "test-123", "type": "analysis"}`)
	ack, err := client.Publish(ctx, "test.pubsub.jobs", testData)
	if err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if ack == nil {
		t.Fatal("Publish() returned nil ack")
	}
	if ack.Stream != "TEST_PUBSUB_STREAM" {
		t.Errorf("ack.Stream = %s, want TEST_PUBSUB_STREAM", ack.Stream)
	}

	// Cleanup
	js := client.JetStream()
	if js != nil {
		js.DeleteStream(ctx, streamCfg.Name)
	}
}

func TestIntegration_Notify(t *testing.T) {
	testNATS := testutil.RequireNATS(t)

	client, err := NewClient(testNATS.URL)
	if err != nil {
		t.Skipf("skipping test: could not connect to NATS: %v", err)
	}
	defer client.Close()

	// Announcements are plain core NATS messages, receivable by any
	// subscriber without JetStream involvement.
	sub, err := client.Conn().SubscribeSync(SubjectAnalysisCompleted)
	if err != nil {
		t.Fatalf("SubscribeSync() error: %v", err)
	}
	defer sub.Unsubscribe()

	payload := []byte(`{"project": "atlas", "summary": "Analyzed project atlas"}`)
	if err := client.Notify(SubjectAnalysisCompleted, payload); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}

	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg() error: %v", err)
	}
	if string(msg.Data) != string(payload) {
		t.Errorf("received %s, want %s", msg.Data, payload)
	}
}

func TestIntegration_Close(t *testing.T) {
	testNATS := testutil.RequireNATS(t)

	client, err := NewClient(testNATS.URL)
	if err != nil {
		t.Skipf("skipping test: could not connect to NATS: %v", err)
	}

	if !client.IsConnected() {
		t.Error("client should be connected before close")
	}

	client.Close()

	if client.IsConnected() {
		t.Error("client should not be connected after close")
	}
	if err := client.HealthCheck(); err == nil {
		t.Error("HealthCheck() should return error after close")
	}

	// Second close should be safe (idempotent)
	client.Close()
}

func TestIntegration_SetupStreams(t *testing.T) {
	testNATS := testutil.RequireNATS(t)

	client, err := NewClient(testNATS.URL)
	if err != nil {
		t.Skipf("skipping test: could not connect to NATS: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.SetupStreams(ctx); err != nil {
		t.Fatalf("SetupStreams() error: %v", err)
	}

	js := client.JetStream()
	if js == nil {
		t.Fatal("JetStream() returned nil")
	}

	stream, err := js.Stream(ctx, StreamJobs)
	if err != nil {
		t.Fatalf("failed to get stream: %v", err)
	}
	if stream == nil {
		t.Error("stream should exist after SetupStreams")
	}

	info, err := stream.Info(ctx)
	if err != nil {
		t.Fatalf("Info() error: %v", err)
	}
	if info.Config.Retention != jetstream.WorkQueuePolicy {
		t.Errorf("Retention = %v, want work queue policy", info.Config.Retention)
	}

	// Cleanup
	js.DeleteStream(ctx, StreamJobs)
}
