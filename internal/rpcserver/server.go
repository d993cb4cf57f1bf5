// Package rpcserver exposes the decode pipeline over the JSON-RPC surface
// spec §6.3 names: dob_protocol_version, dob_decode, dob_batch_decode, and
// dob_raw_decode.
package rpcserver

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sporeprotocol/dob-decoder-go/internal/config"
	"github.com/sporeprotocol/dob-decoder-go/internal/dobtype"
	"github.com/sporeprotocol/dob-decoder-go/internal/pipeline"
)

// Server is the HTTP JSON-RPC API server.
type Server struct {
	settings   *config.Settings
	pipeline   *pipeline.Pipeline
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a Server bound to the given pipeline and settings.
func New(settings *config.Settings, p *pipeline.Pipeline, logger *slog.Logger) *Server {
	return &Server{
		settings: settings,
		pipeline: p,
		logger:   logger.With("component", "rpcserver"),
	}
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully, mirroring the teacher's context-driven serve/shutdown split.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRPC)

	s.httpServer = &http.Server{
		Addr:         s.settings.ListenAddress,
		Handler:      s.loggingMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("rpc server starting", "addr", s.settings.ListenAddress)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down rpc server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("rpc request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// rpcRequest is a JSON-RPC 2.0 envelope. id is echoed back verbatim.
type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcResponse struct {
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, rpcResponse{Error: &rpcError{Kind: "JsonRpcRequestError", Message: err.Error()}})
		return
	}

	requestID := uuid.New().String()[:8]
	logger := s.logger.With("request_id", requestID, "method", req.Method)

	ctx := r.Context()
	if s.settings.RequestTimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.settings.RequestTimeoutSec)*time.Second)
		defer cancel()
	}

	result, err := s.dispatch(ctx, req.Method, req.Params)
	if err != nil {
		logger.Error("rpc call failed", "error", err)
		writeJSON(w, http.StatusOK, rpcResponse{ID: req.ID, Error: &rpcError{
			Kind:    dobtype.KindOf(err).String(),
			Message: err.Error(),
		}})
		return
	}
	logger.Debug("rpc call succeeded")
	writeJSON(w, http.StatusOK, rpcResponse{ID: req.ID, Result: result})
}

func (s *Server) dispatch(ctx context.Context, method string, params []json.RawMessage) (interface{}, error) {
	switch method {
	case "dob_protocol_version":
		return s.settings.ProtocolVersions, nil

	case "dob_decode":
		sporeID, err := stringParam(params, 0)
		if err != nil {
			return nil, err
		}
		result, err := s.pipeline.DecodeDNA(ctx, strings.TrimPrefix(sporeID, "0x"))
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, dobtype.Wrap(dobtype.KindDecoderOutputInvalid, "encode decode result", err)
		}
		return string(encoded), nil

	case "dob_batch_decode":
		ids, err := stringSliceParam(params, 0)
		if err != nil {
			return nil, err
		}
		return s.batchDecode(ctx, ids), nil

	case "dob_raw_decode":
		sporeHex, err := stringParam(params, 0)
		if err != nil {
			return nil, err
		}
		clusterHex, err := stringParam(params, 1)
		if err != nil {
			return nil, err
		}
		sporeData, err := hex.DecodeString(strings.TrimPrefix(sporeHex, "0x"))
		if err != nil {
			return nil, dobtype.Wrap(dobtype.KindSporeDataUncompatible, "decode hex_spore_data", err)
		}
		clusterData, err := hex.DecodeString(strings.TrimPrefix(clusterHex, "0x"))
		if err != nil {
			return nil, dobtype.Wrap(dobtype.KindClusterDataUncompatible, "decode hex_cluster_data", err)
		}
		result, err := s.pipeline.DecodeRaw(ctx, sporeData, clusterData)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, dobtype.Wrap(dobtype.KindDecoderOutputInvalid, "encode raw decode result", err)
		}
		return string(encoded), nil

	default:
		return nil, dobtype.New(dobtype.KindUnknown, fmt.Sprintf("unknown method %q", method))
	}
}

// batchDecode never fails the batch: each element is either the decode
// result or "server error: <message>" (spec §7 Propagation policy).
func (s *Server) batchDecode(ctx context.Context, sporeIDs []string) []string {
	out := make([]string, len(sporeIDs))
	for i, id := range sporeIDs {
		result, err := s.pipeline.DecodeDNA(ctx, strings.TrimPrefix(id, "0x"))
		if err != nil {
			out[i] = fmt.Sprintf("server error: %s", err.Error())
			continue
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			out[i] = fmt.Sprintf("server error: %s", err.Error())
			continue
		}
		out[i] = string(encoded)
	}
	return out
}

func stringParam(params []json.RawMessage, idx int) (string, error) {
	if idx >= len(params) {
		return "", dobtype.New(dobtype.KindJsonRpcRequestError, fmt.Sprintf("missing param %d", idx))
	}
	var v string
	if err := json.Unmarshal(params[idx], &v); err != nil {
		return "", dobtype.Wrap(dobtype.KindJsonRpcRequestError, fmt.Sprintf("param %d is not a string", idx), err)
	}
	return v, nil
}

func stringSliceParam(params []json.RawMessage, idx int) ([]string, error) {
	if idx >= len(params) {
		return nil, dobtype.New(dobtype.KindJsonRpcRequestError, fmt.Sprintf("missing param %d", idx))
	}
	var v []string
	if err := json.Unmarshal(params[idx], &v); err != nil {
		return nil, dobtype.Wrap(dobtype.KindJsonRpcRequestError, fmt.Sprintf("param %d is not a string list", idx), err)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write rpc response", "error", err)
	}
}
