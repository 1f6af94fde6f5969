// Package ledger records shipment events on an append-only ledger through a
// JSON-RPC contract signing bridge. Writes are at-most-once: the client never
// retries on its own, since a resubmission would duplicate on-chain entries.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chainsight-labs/chainsight/pkg/logger"
)

var (
	// ErrUnavailable is returned synchronously by write operations when
	// the client is missing configuration and runs in disabled mode.
	ErrUnavailable = errors.New("ledger: not configured")

	// ErrTransaction marks a submission or confirmation failure. Match it
	// with errors.Is; the concrete value is a *TransactionError.
	ErrTransaction = errors.New("ledger: transaction failed")
)

// TransactionError wraps a failed contract invocation.
type TransactionError struct {
	Method string
	Err    error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("ledger: %s failed: %v", e.Method, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

func (e *TransactionError) Is(target error) bool { return target == ErrTransaction }

// Config holds the bridge connection settings. Absence of any of RPCURL,
// ContractAddress or SignerKey puts the client in disabled mode.
type Config struct {
	RPCURL          string
	ContractAddress string
	SignerKey       string
	Timeout         time.Duration // read calls
	ConfirmTimeout  time.Duration // write calls, includes confirmation wait
}

// DefaultConfirmTimeout bounds the wait for a write confirmation. Writes
// inherently take longer than reads because the bridge waits for inclusion.
const DefaultConfirmTimeout = 2 * time.Minute

// DefaultTimeout bounds read-only calls.
const DefaultTimeout = 10 * time.Second

// Client talks JSON-RPC to the signing bridge.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient builds a client. A partially configured client is still returned
// so callers can probe Enabled and receive ErrUnavailable from writes.
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Client{
		cfg: cfg,
		// No client-level timeout; each call sets its own deadline so
		// writes can wait for confirmation longer than reads.
		httpClient: &http.Client{},
		log:        log,
	}
}

// Enabled reports whether the client has a complete configuration.
func (c *Client) Enabled() bool {
	return c.cfg.RPCURL != "" && c.cfg.ContractAddress != "" && c.cfg.SignerKey != ""
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RPCURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.SignerKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.SignerKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge status %d", resp.StatusCode)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// invoke submits a state-changing contract call and waits for confirmation.
func (c *Client) invoke(ctx context.Context, method string, args ...interface{}) (invokeResult, error) {
	if !c.Enabled() {
		return invokeResult{}, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()

	var result invokeResult
	err := c.call(ctx, "contract_invoke", invokeParams{
		Contract: c.cfg.ContractAddress,
		Method:   method,
		Args:     args,
	}, &result)
	if err != nil {
		return invokeResult{}, &TransactionError{Method: method, Err: err}
	}
	return result, nil
}

// read performs a read-only contract call.
func (c *Client) read(ctx context.Context, method string, out interface{}, args ...interface{}) error {
	if !c.Enabled() {
		return ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	err := c.call(ctx, "contract_call", invokeParams{
		Contract: c.cfg.ContractAddress,
		Method:   method,
		Args:     args,
	}, out)
	if err != nil {
		return &TransactionError{Method: method, Err: err}
	}
	return nil
}

// RecordCreate writes a shipment creation event.
func (c *Client) RecordCreate(ctx context.Context, shipmentID, origin, destination, carrier string) (CreateReceipt, error) {
	result, err := c.invoke(ctx, "createShipment", shipmentID, origin, destination, carrier)
	if err != nil {
		return CreateReceipt{}, err
	}
	c.log.WithField("shipment_id", shipmentID).
		WithField("tx", result.TxHash).
		Info("shipment recorded on ledger")
	return CreateReceipt{
		TxRef:       result.TxHash,
		ContentHash: result.DataHash,
		BlockNumber: result.BlockNumber,
	}, nil
}

// RecordStatusUpdate writes a status transition event.
func (c *Client) RecordStatusUpdate(ctx context.Context, shipmentID, status, location, notes string) (UpdateReceipt, error) {
	result, err := c.invoke(ctx, "updateShipmentStatus", shipmentID, status, location, notes)
	if err != nil {
		return UpdateReceipt{}, err
	}
	c.log.WithField("shipment_id", shipmentID).
		WithField("status", status).
		WithField("tx", result.TxHash).
		Info("status update recorded on ledger")
	return UpdateReceipt{
		TxRef:       result.TxHash,
		BlockNumber: result.BlockNumber,
	}, nil
}

// FetchRecord reads the on-chain view of a shipment.
func (c *Client) FetchRecord(ctx context.Context, shipmentID string) (Record, error) {
	var rec Record
	if err := c.read(ctx, "getShipment", &rec, shipmentID); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// FetchHistory reads the full on-chain status history of a shipment.
func (c *Client) FetchHistory(ctx context.Context, shipmentID string) ([]HistoryEntry, error) {
	var history []HistoryEntry
	if err := c.read(ctx, "getShipmentHistory", &history, shipmentID); err != nil {
		return nil, err
	}
	return history, nil
}

// VerifyIntegrity asks the contract to recompute the content hash and
// compare it to the stored one.
func (c *Client) VerifyIntegrity(ctx context.Context, shipmentID string) (bool, error) {
	var valid bool
	if err := c.read(ctx, "verifyShipmentHash", &valid, shipmentID); err != nil {
		return false, err
	}
	return valid, nil
}

// AllShipments lists the shipment ids known to the contract.
func (c *Client) AllShipments(ctx context.Context) ([]string, error) {
	var ids []string
	if err := c.read(ctx, "getAllShipments", &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Count returns the on-chain shipment count.
func (c *Client) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := c.read(ctx, "getShipmentCount", &count); err != nil {
		return 0, err
	}
	return count, nil
}

// NetworkInfo reports the chain the bridge is connected to.
func (c *Client) NetworkInfo(ctx context.Context) (NetworkInfo, error) {
	if !c.Enabled() {
		return NetworkInfo{}, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var info NetworkInfo
	if err := c.call(ctx, "network_info", nil, &info); err != nil {
		return NetworkInfo{}, &TransactionError{Method: "networkInfo", Err: err}
	}
	return info, nil
}
