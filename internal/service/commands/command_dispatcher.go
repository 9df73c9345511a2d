// Package commands turns scanner console lines into API calls. A line is either a
// barcode or one of a few short commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/service/counting"
	"github.com/mamadbah2/stockcount/pkg/clients/countsync"
)

// ErrInvalidArguments indicates the command payload could not be parsed.
var ErrInvalidArguments = errors.New("invalid command arguments")

// ErrUnsupportedCommand indicates we do not yet support the requested command.
var ErrUnsupportedCommand = errors.New("unsupported command")

// CommandType enumerates console command categories.
type CommandType string

const (
	CommandScan      CommandType = "scan"
	CommandMinus     CommandType = "minus"
	CommandSet       CommandType = "set"
	CommandConfirm   CommandType = "confirm"
	CommandCancel    CommandType = "cancel"
	CommandWarehouse CommandType = "wh"
	CommandStatus    CommandType = "status"
	CommandUnknown   CommandType = "unknown"
)

// Command is a parsed console line.
type Command struct {
	Type CommandType
	Raw  string
	Args []string
}

// ParseCommand derives a Command from a console line. Anything that is not a known
// command word is a scanned barcode; barcodes keep their case.
func ParseCommand(line string) Command {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Command{Type: CommandUnknown, Raw: line}
	}

	tokens := strings.Fields(trimmed)
	cmd := Command{Raw: line}
	if len(tokens) > 1 {
		cmd.Args = tokens[1:]
	}

	switch strings.TrimPrefix(strings.ToLower(tokens[0]), "/") {
	case "y", "yes":
		cmd.Type = CommandConfirm
	case "n", "no":
		cmd.Type = CommandCancel
	case "-", "minus":
		cmd.Type = CommandMinus
	case string(CommandSet):
		cmd.Type = CommandSet
	case string(CommandWarehouse):
		cmd.Type = CommandWarehouse
	case string(CommandStatus):
		cmd.Type = CommandStatus
	default:
		if len(tokens) != 1 {
			cmd.Type = CommandUnknown
			return cmd
		}
		cmd.Type = CommandScan
		cmd.Args = tokens
	}
	return cmd
}

// Dispatcher executes parsed commands.
type Dispatcher interface {
	HandleCommand(ctx context.Context, cmd Command) (string, error)
}

// Service implements Dispatcher on top of the API client.
type Service struct {
	client countsync.Client
	logger *zap.Logger
}

// NewService constructs a command dispatcher.
func NewService(client countsync.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, logger: logger}
}

// HandleCommand runs the command and returns the line to show the operator.
func (s *Service) HandleCommand(ctx context.Context, cmd Command) (string, error) {
	s.logger.Debug("dispatching command", zap.String("command", string(cmd.Type)), zap.Strings("args", cmd.Args))

	switch cmd.Type {
	case CommandScan:
		res, err := s.client.Scan(ctx, cmd.Args[0])
		if errors.Is(err, models.ErrConflictPending) {
			return "", fmt.Errorf("%w, answer y or n first", err)
		}
		if err != nil {
			return "", err
		}
		if !res.Accepted {
			return "", nil
		}
		return describe(res.Result), nil
	case CommandMinus:
		if len(cmd.Args) != 1 {
			return "", fmt.Errorf("%w: usage: - CODE", ErrInvalidArguments)
		}
		res, err := s.client.Delta(ctx, cmd.Args[0], -1)
		if err != nil {
			return "", err
		}
		return describe(*res), nil
	case CommandSet:
		if len(cmd.Args) != 2 {
			return "", fmt.Errorf("%w: usage: set CODE VALUE", ErrInvalidArguments)
		}
		if _, _, err := counting.ParseSetInput(cmd.Args[1]); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
		res, err := s.client.Set(ctx, cmd.Args[0], cmd.Args[1])
		if err != nil {
			return "", err
		}
		return describe(*res), nil
	case CommandConfirm:
		res, err := s.client.Confirm(ctx)
		if err != nil {
			return "", err
		}
		return describe(*res), nil
	case CommandCancel:
		if err := s.client.Cancel(ctx); err != nil {
			return "", err
		}
		return "cancelled", nil
	case CommandWarehouse:
		if len(cmd.Args) != 1 {
			return "", fmt.Errorf("%w: usage: wh ID", ErrInvalidArguments)
		}
		if err := s.client.SelectWarehouse(ctx, cmd.Args[0]); err != nil {
			return "", err
		}
		return "warehouse " + cmd.Args[0], nil
	case CommandStatus:
		status, err := s.client.Status(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("warehouse=%s online=%t syncing=%t dirty=%d gate=%s",
			status.WarehouseID, status.Online, status.Syncing, status.Dirty, status.Gate), nil
	default:
		return "", ErrUnsupportedCommand
	}
}

func describe(res counting.Result) string {
	if p := res.Pending; p != nil && res.Outcome == counting.OutcomeAwaitingConfirmation {
		return fmt.Sprintf("%s %q: %d -> %d exceeds stock %d, confirm? [y/n]",
			p.Barcode, p.Description, p.PreviousValue, p.ProposedValue, p.Stock)
	}
	if res.Item == nil {
		return strings.TrimSpace(string(res.Outcome) + " " + res.Reason)
	}
	msg := fmt.Sprintf("%s %q count=%d stock=%d (%s)", res.Item.Barcode, res.Item.Description, res.Item.Count, res.Item.Stock, res.Outcome)
	if res.Reason != "" {
		msg += " " + res.Reason
	}
	return msg
}
