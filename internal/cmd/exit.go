package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	apperrors "github.com/voidhaul/voidhaul/internal/errors"
	"github.com/voidhaul/voidhaul/internal/observability"
)

var osExit = os.Exit

// exitPlan is what ExitOnError reports before exiting.
type exitPlan struct {
	code     foundry.ExitCode
	message  string
	envelope *errors.ErrorEnvelope
}

func planExit(err error) exitPlan {
	envelope := apperrors.FromError(context.Background(), err)
	plan := exitPlan{code: apperrors.ExitCodeFor(err), message: "Command failed", envelope: envelope}
	switch envelope.Code {
	case apperrors.CodeUnauthorized:
		plan.message = "Agent token rejected (universe reset?); register a new agent and update AGENT_TOKEN"
	case apperrors.CodeConfigInvalid:
		plan.message = "Configuration is invalid"
	case apperrors.CodeExternalService, apperrors.CodeTimeout:
		plan.message = "Game server unavailable after retries"
	case apperrors.CodeUpstreamRejected:
		plan.message = "Game server rejected the request"
	}
	return plan
}

// ExitOnError classifies a command error and exits with the matching foundry
// code. A fatal identity error exits with ExitFailure and says so plainly.
func ExitOnError(err error) {
	if err == nil {
		return
	}
	plan := planExit(err)
	ExitWithCode(observability.CLILogger, plan.code, plan.message, plan.envelope)
}

// ExitWithCode logs err with the foundry exit code metadata and exits. With a
// nil logger the report goes to stderr.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		osExit(int(exitCode))
		return
	}

	if logger == nil {
		writeExitReport(os.Stderr, msg, err)
		_, _ = fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		osExit(info.Code)
		return
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("correlation_id", envelope.CorrelationID),
		)
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
		if original, ok := envelope.Original.(error); ok && original != nil {
			err = original
		}
	}
	fields = append(fields, zap.Error(err))
	logger.Error(msg, fields...)
	osExit(info.Code)
}

func writeExitReport(w io.Writer, msg string, err error) {
	var envelope *errors.ErrorEnvelope
	switch {
	case err == nil:
		_, _ = fmt.Fprintf(w, "FATAL: %s\n", msg)
	case stderrors.As(err, &envelope) && envelope != nil:
		_, _ = fmt.Fprintf(w, "FATAL: %s [%s]: %s (correlation: %s)\n", msg, envelope.Code, envelope.Message, envelope.CorrelationID)
		if original, ok := envelope.Original.(error); ok && original != nil {
			_, _ = fmt.Fprintf(w, "Underlying error: %v\n", original)
		}
	default:
		_, _ = fmt.Fprintf(w, "FATAL: %s: %v\n", msg, err)
	}
}
