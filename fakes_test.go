package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// fakeService is an in-memory ChatGPTService. Each created run walks
// through the next script in runs, one status per GetRun call. overlaps
// counts runs created while an earlier run was not yet seen terminal.
type fakeService struct {
	mu sync.Mutex

	createAssistantErr error
	uploadErr          error
	updateErr          error
	createRunErr       error
	getRunErr          error
	cancelErr          error
	// ignoreCancel keeps cancelled runs on their script
	ignoreCancel bool

	assistants   []AssistantDescriptor
	fileUpdates  [][]string
	uploads      []string
	userMessages []string
	runs         [][]ThreadRun
	runCount     int
	activeRun    string
	overlaps     int
	polls        map[string]int
	submitted    map[string][][]ToolOutput
	cancelled    map[string]int
	messages     []ThreadMessage
	messageLists int
}

func newFakeService() *fakeService {
	return &fakeService{
		polls:     map[string]int{},
		submitted: map[string][][]ToolOutput{},
		cancelled: map[string]int{},
	}
}

func (f *fakeService) VerifyCredentials(ctx context.Context) error       { return nil }
func (f *fakeService) GetModel(ctx context.Context, model string) error  { return nil }
func (f *fakeService) GetAssistant(ctx context.Context, id string) error { return nil }

func (f *fakeService) CreateAssistant(ctx context.Context, descriptor AssistantDescriptor) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createAssistantErr != nil {
		return "", f.createAssistantErr
	}
	f.assistants = append(f.assistants, descriptor)
	return fmt.Sprintf("asst_%d", len(f.assistants)), nil
}

func (f *fakeService) UpdateAssistantFiles(ctx context.Context, id string, fileIds []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.fileUpdates = append(f.fileUpdates, fileIds)
	return nil
}

func (f *fakeService) UploadFile(ctx context.Context, filename string, content io.Reader) (string, error) {
	if _, err := io.ReadAll(content); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, filename)
	return fmt.Sprintf("file_%d", len(f.uploads)), nil
}

func (f *fakeService) CreateThread(ctx context.Context) (string, error) {
	return "thread_1", nil
}

func (f *fakeService) CreateMessage(ctx context.Context, threadId, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userMessages = append(f.userMessages, text)
	f.messages = append(f.messages, ThreadMessage{
		Id:       fmt.Sprintf("msg_user_%d", len(f.userMessages)),
		ThreadId: threadId,
		Role:     MessageRoleUser,
		Content:  []string{text},
	})
	return nil
}

func (f *fakeService) CreateRun(ctx context.Context, threadId, assistantId string) (ThreadRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createRunErr != nil {
		return ThreadRun{}, f.createRunErr
	}
	f.runCount++
	if f.activeRun != "" {
		f.overlaps++
	}
	f.activeRun = fmt.Sprintf("run_%d", f.runCount)
	return ThreadRun{
		Id:       fmt.Sprintf("run_%d", f.runCount),
		ThreadId: threadId,
		Status:   RunStatusQueued,
	}, nil
}

func (f *fakeService) GetRun(ctx context.Context, threadId, runId string) (ThreadRun, error) {
	// the real client reports an expired context as a failed request
	if err := ctx.Err(); err != nil {
		return ThreadRun{}, ChatGPTError{Op: "get run", Type: ChatGPTErrorTypeTransport, Err: err}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getRunErr != nil {
		return ThreadRun{}, f.getRunErr
	}

	var index int
	if _, err := fmt.Sscanf(runId, "run_%d", &index); err != nil || index < 1 || index > len(f.runs) {
		return ThreadRun{}, fmt.Errorf("unknown run %s", runId)
	}
	script := f.runs[index-1]
	poll := f.polls[runId]
	f.polls[runId] = poll + 1
	if poll >= len(script) {
		poll = len(script) - 1
	}
	run := script[poll]
	run.Id = runId
	run.ThreadId = threadId
	if f.cancelled[runId] > 0 && !f.ignoreCancel {
		run = ThreadRun{Id: runId, ThreadId: threadId, Status: RunStatusCancelled}
	}
	if run.Status.IsTerminal() && f.activeRun == runId {
		f.activeRun = ""
	}
	return run, nil
}

func (f *fakeService) CancelRun(ctx context.Context, threadId, runId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled[runId]++
	return nil
}

func (f *fakeService) SubmitToolOutputs(ctx context.Context, threadId, runId string, outputs []ToolOutput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted[runId] = append(f.submitted[runId], outputs)
	return nil
}

func (f *fakeService) GetThreadMessages(ctx context.Context, threadId string) ([]ThreadMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messageLists++
	messages := make([]ThreadMessage, len(f.messages))
	copy(messages, f.messages)
	return messages, nil
}

// reply records an assistant message produced by runId.
func (f *fakeService) reply(runId, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, ThreadMessage{
		Id:      fmt.Sprintf("msg_%s_%d", runId, len(f.messages)),
		RunId:   runId,
		Role:    MessageRoleAssistant,
		Content: []string{text},
	})
}

// noSleep records requested delays without waiting.
type noSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *noSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

// recordingProgress collects progress messages.
type recordingProgress struct {
	mu       sync.Mutex
	messages []string
	stopped  int
}

func (p *recordingProgress) Update(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
}

func (p *recordingProgress) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped++
}
