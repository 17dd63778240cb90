package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Answer is the outcome of one question. Responded is false when the
// run completed without an assistant message.
type Answer struct {
	Run       RunResult
	Message   ThreadMessage
	Responded bool
}

// Conversation asks questions of one assistant on one thread. At most one
// run is active at a time.
type Conversation struct {
	session     *Session
	driver      *RunDriver
	assistantId string
	runTimeout  time.Duration
}

func NewConversation(session *Session, driver *RunDriver, assistantId string, runTimeout time.Duration) *Conversation {
	return &Conversation{
		session:     session,
		driver:      driver,
		assistantId: assistantId,
		runTimeout:  runTimeout,
	}
}

// Ask posts question, drives the resulting run and reads the last
// assistant message of that run. Terminal statuses other than completed
// come back as a RunTerminalError and no message is read. A run given up
// on before it finished (failed tool, poll limit, run timeout) is
// cancelled before Ask returns.
func (c *Conversation) Ask(ctx context.Context, question string) (Answer, error) {
	if err := c.session.PostUserMessage(ctx, question); err != nil {
		return Answer{}, err
	}

	run, err := c.session.StartRun(ctx, c.assistantId)
	if err != nil {
		return Answer{}, err
	}

	driveCtx := ctx
	if c.runTimeout > 0 {
		var cancel context.CancelFunc
		driveCtx, cancel = context.WithTimeout(ctx, c.runTimeout)
		defer cancel()
	}

	result, err := c.driver.Drive(driveCtx, run.Id)
	answer := Answer{Run: result}
	if err != nil {
		if abandonsRun(err) && ctx.Err() == nil {
			// the thread accepts no new run until this one is terminal
			status, stopErr := c.driver.Stop(ctx, run.Id)
			if stopErr != nil {
				return answer, errors.Join(err, stopErr)
			}
			answer.Run.Status = status
		}
		return answer, err
	}

	message, ok, err := c.session.LatestAssistantMessage(ctx, run.Id)
	if err != nil {
		return answer, err
	}
	if !ok {
		log.Warn(fmt.Sprintf("run %s completed without an assistant message", run.Id))
		return answer, nil
	}
	answer.Message = message
	answer.Responded = true
	return answer, nil
}

// abandonsRun reports whether Drive returned while the run may still be
// active on the server. Remote failures end the session instead.
func abandonsRun(err error) bool {
	var terminal RunTerminalError
	if errors.As(err, &terminal) {
		return false
	}
	var gptError ChatGPTError
	return !errors.As(err, &gptError)
}
