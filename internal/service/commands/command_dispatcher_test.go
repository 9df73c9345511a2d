package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/service/counting"
	"github.com/mamadbah2/stockcount/internal/service/engine"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		typ  CommandType
		args []string
	}{
		{"4006381333931", CommandScan, []string{"4006381333931"}},
		{"  AbC-12 ", CommandScan, []string{"AbC-12"}},
		{"y", CommandConfirm, nil},
		{"YES", CommandConfirm, nil},
		{"n", CommandCancel, nil},
		{"- 111", CommandMinus, []string{"111"}},
		{"minus 111", CommandMinus, []string{"111"}},
		{"set 111 +3", CommandSet, []string{"111", "+3"}},
		{"/wh back", CommandWarehouse, []string{"back"}},
		{"status", CommandStatus, nil},
		{"two words", CommandUnknown, []string{"words"}},
		{"", CommandUnknown, nil},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd := ParseCommand(tt.line)
			assert.Equal(t, tt.typ, cmd.Type)
			assert.Equal(t, tt.args, cmd.Args)
			assert.Equal(t, tt.line, cmd.Raw)
		})
	}
}

type fakeClient struct {
	calls   []string
	scanRes *engine.ScanResult
	result  *counting.Result
	err     error
}

func (f *fakeClient) record(call string) { f.calls = append(f.calls, call) }

func (f *fakeClient) OpenSession(context.Context) (*engine.Status, error) {
	f.record("open")
	return &engine.Status{}, f.err
}

func (f *fakeClient) CloseSession(context.Context) error {
	f.record("close")
	return f.err
}

func (f *fakeClient) Status(context.Context) (*engine.Status, error) {
	f.record("status")
	return &engine.Status{WarehouseID: "default", Online: true, Dirty: 2, Gate: counting.StateIdle}, f.err
}

func (f *fakeClient) Scan(_ context.Context, barcode string) (*engine.ScanResult, error) {
	f.record("scan " + barcode)
	return f.scanRes, f.err
}

func (f *fakeClient) Delta(_ context.Context, barcode string, delta int) (*counting.Result, error) {
	f.record("delta " + barcode)
	return f.result, f.err
}

func (f *fakeClient) Set(_ context.Context, barcode, value string) (*counting.Result, error) {
	f.record("set " + barcode + " " + value)
	return f.result, f.err
}

func (f *fakeClient) Pending(context.Context) (*models.PendingConfirmation, error) {
	f.record("pending")
	return nil, f.err
}

func (f *fakeClient) Confirm(context.Context) (*counting.Result, error) {
	f.record("confirm")
	return f.result, f.err
}

func (f *fakeClient) Cancel(context.Context) error {
	f.record("cancel")
	return f.err
}

func (f *fakeClient) SelectWarehouse(_ context.Context, id string) error {
	f.record("wh " + id)
	return f.err
}

func TestHandleScan(t *testing.T) {
	item := &models.CountingListItem{Barcode: "111", Description: "Tea", Count: 3, Stock: 5}
	client := &fakeClient{scanRes: &engine.ScanResult{Accepted: true, Result: counting.Result{Outcome: counting.OutcomeApplied, Item: item}}}
	svc := NewService(client, zaptest.NewLogger(t))

	reply, err := svc.HandleCommand(context.Background(), ParseCommand("111"))
	require.NoError(t, err)
	assert.Equal(t, `111 "Tea" count=3 stock=5 (applied)`, reply)

	client.scanRes = &engine.ScanResult{Accepted: false}
	reply, err = svc.HandleCommand(context.Background(), ParseCommand("111"))
	require.NoError(t, err)
	assert.Empty(t, reply)

	client.err = models.ErrConflictPending
	_, err = svc.HandleCommand(context.Background(), ParseCommand("111"))
	assert.ErrorIs(t, err, models.ErrConflictPending)
	assert.Contains(t, err.Error(), "answer y or n")
}

func TestHandleOverflowPrompt(t *testing.T) {
	client := &fakeClient{result: &counting.Result{
		Outcome: counting.OutcomeAwaitingConfirmation,
		Pending: &models.PendingConfirmation{Barcode: "111", Description: "Tea", PreviousValue: 5, ProposedValue: 6, Stock: 5},
	}}
	svc := NewService(client, nil)

	reply, err := svc.HandleCommand(context.Background(), ParseCommand("set 111 6"))
	require.NoError(t, err)
	assert.Equal(t, `111 "Tea": 5 -> 6 exceeds stock 5, confirm? [y/n]`, reply)
	assert.Equal(t, []string{"set 111 6"}, client.calls)
}

func TestHandleRejectsBadArguments(t *testing.T) {
	client := &fakeClient{}
	svc := NewService(client, nil)
	ctx := context.Background()

	for _, line := range []string{"-", "set 111", "set 111 many", "wh"} {
		_, err := svc.HandleCommand(ctx, ParseCommand(line))
		assert.ErrorIs(t, err, ErrInvalidArguments, line)
	}
	_, err := svc.HandleCommand(ctx, ParseCommand("two words"))
	assert.ErrorIs(t, err, ErrUnsupportedCommand)
	assert.Empty(t, client.calls)
}

func TestHandleSessionCommands(t *testing.T) {
	client := &fakeClient{result: &counting.Result{Outcome: counting.OutcomeApplied, Item: &models.CountingListItem{Barcode: "111", Count: 6}}}
	svc := NewService(client, nil)
	ctx := context.Background()

	reply, err := svc.HandleCommand(ctx, ParseCommand("y"))
	require.NoError(t, err)
	assert.Contains(t, reply, "count=6")

	reply, err = svc.HandleCommand(ctx, ParseCommand("n"))
	require.NoError(t, err)
	assert.Equal(t, "cancelled", reply)

	reply, err = svc.HandleCommand(ctx, ParseCommand("wh back"))
	require.NoError(t, err)
	assert.Equal(t, "warehouse back", reply)

	reply, err = svc.HandleCommand(ctx, ParseCommand("status"))
	require.NoError(t, err)
	assert.Equal(t, "warehouse=default online=true syncing=false dirty=2 gate=idle", reply)

	reply, err = svc.HandleCommand(ctx, ParseCommand("- 111"))
	require.NoError(t, err)
	assert.Contains(t, reply, "count=6")

	assert.Equal(t, []string{"confirm", "cancel", "wh back", "status", "delta 111"}, client.calls)
}
