package parking

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const shellHelp = `Commands:
  park_stack [car_id|-] [#rrggbb]   park a car in the stack section
  park_queue [car_id|-] [#rrggbb]   park a car in the queue section
  remove_stack                      remove the most recently parked stack car
  remove_queue                      remove the longest-waiting queue car
  clear_all                         empty both sections
  status                            show the lot
  help                              show this help
  exit                              leave the shell`

// Shell is a line-oriented front end over any Operator, local or remote.
type Shell struct {
	op      Operator
	scanner *bufio.Scanner
	out     io.Writer
	tracer  trace.Tracer
}

func NewShell(op Operator, in io.Reader, out io.Writer, tracer trace.Tracer) *Shell {
	return &Shell{
		op:      op,
		scanner: bufio.NewScanner(in),
		out:     out,
		tracer:  tracer,
	}
}

// Run reads commands until EOF, "exit" or ctx is cancelled.
func (s *Shell) Run(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "shell.run")
	defer span.End()

	span.AddEvent("shell_started")
	fmt.Fprintln(s.out, "Type 'help' for commands.")

	for s.scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		input := strings.TrimSpace(s.scanner.Text())
		if input == "" {
			continue
		}

		cmdCtx, cmdSpan := s.tracer.Start(ctx, "shell.process_command",
			trace.WithAttributes(attribute.String("command.input", input)))
		done := s.processCommand(cmdCtx, input)
		cmdSpan.End()
		if done {
			break
		}
	}

	span.AddEvent("shell_ended")
	return s.scanner.Err()
}

// processCommand runs one command and reports whether the shell should stop.
func (s *Shell) processCommand(ctx context.Context, input string) bool {
	parts := strings.Fields(input)
	command := parts[0]
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("command.name", command))

	var (
		state State
		err   error
	)
	switch command {
	case OpParkStack:
		state, err = s.op.ParkStack(ctx, parseParkArgs(parts[1:]))
	case OpParkQueue:
		state, err = s.op.ParkQueue(ctx, parseParkArgs(parts[1:]))
	case OpRemoveStack:
		state, err = s.op.RemoveStack(ctx)
	case OpRemoveQueue:
		state, err = s.op.RemoveQueue(ctx)
	case OpClearAll:
		state, err = s.op.ClearAll(ctx)
	case "status", OpState:
		state, err = s.op.State(ctx)
	case "help":
		fmt.Fprintln(s.out, shellHelp)
		return false
	case "exit", "quit":
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s\n", command)
		return false
	}

	if err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		fmt.Fprintf(s.out, "Error: %s\n", err)
		return false
	}
	fmt.Fprintln(s.out, Render(state))
	return false
}

// parseParkArgs reads "[car_id|-] [color]". A "-" or missing id lets the lot
// assign one.
func parseParkArgs(args []string) ParkRequest {
	var req ParkRequest
	if len(args) > 0 && args[0] != "-" {
		req.CarID = args[0]
	}
	if len(args) > 1 {
		req.Color = args[1]
	}
	return req
}
