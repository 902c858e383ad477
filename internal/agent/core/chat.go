package core

import (
	"context"
	"fmt"
	"strings"
)

// Chat answers a free-form user message. A message addressed to a
// specific worker with "@name ..." is routed through the directory;
// anything else goes to the desk-level chat model.
func (o *Orchestrator) Chat(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("empty chat message")
	}

	if strings.HasPrefix(message, "@") {
		parts := strings.SplitN(message[1:], " ", 2)
		if len(parts) == 2 {
			if answer, err := o.directory.Ask(ctx, parts[0], parts[1]); err == nil {
				return answer, nil
			}
			// Unknown worker name falls through to the desk.
		}
	}

	system := "You are the front desk of a trading analysis squad. The squad's analysts are: " +
		strings.Join(o.directory.Names(), ", ") +
		". Answer questions about markets, tickers, and the squad's analysis process. " +
		"Be direct and concise. You do not execute trades."

	resp, err := generateWithRetry(ctx, o.router.For(RoleChat), ChatRequest{
		System: system,
		User:   message,
	}, o.config.Workers.MaxRetries)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
