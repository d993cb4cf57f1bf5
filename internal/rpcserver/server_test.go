package rpcserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/sporeprotocol/dob-decoder-go/internal/config"
	"github.com/sporeprotocol/dob-decoder-go/internal/dobtype"
)

func rawMsg(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestDispatchProtocolVersion(t *testing.T) {
	s := &Server{
		settings: &config.Settings{ProtocolVersions: []string{"dob/0", "dob/1"}},
		logger:   slog.Default(),
	}
	result, err := s.dispatch(context.Background(), "dob_protocol_version", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	versions, ok := result.([]string)
	if !ok || len(versions) != 2 {
		t.Errorf("got %v, want [dob/0 dob/1]", result)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	s := &Server{settings: &config.Settings{}, logger: slog.Default()}
	_, err := s.dispatch(context.Background(), "dob_does_not_exist", nil)
	if dobtype.KindOf(err) != dobtype.KindUnknown {
		t.Errorf("expected KindUnknown, got %v", err)
	}
}

func TestDispatchRawDecodeRejectsBadHex(t *testing.T) {
	s := &Server{settings: &config.Settings{}, logger: slog.Default()}
	params := []json.RawMessage{rawMsg(t, "not-hex"), rawMsg(t, "0x00")}
	_, err := s.dispatch(context.Background(), "dob_raw_decode", params)
	if dobtype.KindOf(err) != dobtype.KindSporeDataUncompatible {
		t.Errorf("expected KindSporeDataUncompatible, got %v", err)
	}
}

func TestStringParamMissing(t *testing.T) {
	if _, err := stringParam(nil, 0); dobtype.KindOf(err) != dobtype.KindJsonRpcRequestError {
		t.Errorf("expected KindJsonRpcRequestError, got %v", err)
	}
}

func TestStringParamWrongType(t *testing.T) {
	params := []json.RawMessage{rawMsg(t, 42)}
	if _, err := stringParam(params, 0); dobtype.KindOf(err) != dobtype.KindJsonRpcRequestError {
		t.Errorf("expected KindJsonRpcRequestError, got %v", err)
	}
}

func TestStringSliceParamHappyPath(t *testing.T) {
	params := []json.RawMessage{rawMsg(t, []string{"a", "b"})}
	got, err := stringSliceParam(params, 0)
	if err != nil {
		t.Fatalf("stringSliceParam: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got %v", got)
	}
}

func TestBatchDecodeNeverFailsOnEmptyList(t *testing.T) {
	s := &Server{settings: &config.Settings{}, logger: slog.Default()}
	got := s.batchDecode(context.Background(), nil)
	if len(got) != 0 {
		t.Errorf("got %v, want empty slice", got)
	}
}
