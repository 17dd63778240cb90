package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	log "github.com/sirupsen/logrus"
)

// ChatGPTService is the subset of the assistants API used by goassistant.
// Every method is a single remote call with no retry.
type ChatGPTService interface {
	VerifyCredentials(ctx context.Context) error
	GetModel(ctx context.Context, model string) error
	GetAssistant(ctx context.Context, id string) error
	CreateAssistant(ctx context.Context, descriptor AssistantDescriptor) (string, error)
	UpdateAssistantFiles(ctx context.Context, id string, fileIds []string) error
	UploadFile(ctx context.Context, filename string, content io.Reader) (string, error)
	CreateThread(ctx context.Context) (string, error)
	CreateMessage(ctx context.Context, threadId, text string) error
	CreateRun(ctx context.Context, threadId, assistantId string) (ThreadRun, error)
	GetRun(ctx context.Context, threadId, runId string) (ThreadRun, error)
	SubmitToolOutputs(ctx context.Context, threadId, runId string, outputs []ToolOutput) error
	CancelRun(ctx context.Context, threadId, runId string) error
	GetThreadMessages(ctx context.Context, threadId string) ([]ThreadMessage, error)
}

type ChatGPTAssistantClient struct {
	Credentials ChatGPTCredentials
	Model       string
	client      openai.Client
}

func NewChatGPTAssistantClient(model string, credentials ChatGPTCredentials) *ChatGPTAssistantClient {
	opts := []option.RequestOption{
		option.WithAPIKey(credentials.Secret),
		option.WithMaxRetries(0),
	}
	if credentials.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(credentials.BaseURL))
	}
	return &ChatGPTAssistantClient{
		Credentials: credentials,
		Model:       model,
		client:      openai.NewClient(opts...),
	}
}

// NewChatGPTError classifies err as returned by the openai client. API
// errors keep their status code; anything else is a transport failure.
func NewChatGPTError(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		gptError := ChatGPTError{
			Op:   op,
			Code: apiErr.StatusCode,
			Err:  err,
		}
		// add error type to error interface
		if apiErr.StatusCode == http.StatusUnauthorized {
			gptError.Type = ChatGPTErrorTypeAuth
		} else {
			gptError.Type = ChatGPTErrorTypeAPI
		}
		return gptError
	}
	return ChatGPTError{
		Op:   op,
		Type: ChatGPTErrorTypeTransport,
		Err:  err,
	}
}

// VerifyCredentials checks the API key by listing models.
func (client *ChatGPTAssistantClient) VerifyCredentials(ctx context.Context) error {
	if _, err := client.client.Models.List(ctx); err != nil {
		return NewChatGPTError("verify credentials", err)
	}
	return nil
}

func (client *ChatGPTAssistantClient) GetModel(ctx context.Context, model string) error {
	if _, err := client.client.Models.Get(ctx, model); err != nil {
		return NewChatGPTError("get model", err)
	}
	return nil
}

func (client *ChatGPTAssistantClient) GetAssistant(ctx context.Context, id string) error {
	if _, err := client.client.Beta.Assistants.Get(ctx, id); err != nil {
		return NewChatGPTError("get assistant", err)
	}
	return nil
}

// CreateAssistant creates a remote assistant from the descriptor's name,
// instructions, model and tool schemas and returns the new assistant id.
// The code interpreter is always enabled so uploaded files can be read.
func (client *ChatGPTAssistantClient) CreateAssistant(ctx context.Context, descriptor AssistantDescriptor) (string, error) {
	tools := make([]openai.AssistantToolUnionParam, 0, len(descriptor.Tools)+1)
	tools = append(tools, openai.AssistantToolUnionParam{
		OfCodeInterpreter: &openai.CodeInterpreterToolParam{},
	})
	for _, schema := range descriptor.Tools {
		tools = append(tools, openai.AssistantToolUnionParam{
			OfFunction: &openai.FunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        schema.Name,
					Description: openai.String(schema.Description),
					Parameters:  openai.FunctionParameters(schema.Parameters),
				},
			},
		})
	}

	model := descriptor.Model
	if model == "" {
		model = client.Model
	}

	assistant, err := client.client.Beta.Assistants.New(ctx, openai.BetaAssistantNewParams{
		Model:        openai.ChatModel(model),
		Name:         openai.String(descriptor.Name),
		Instructions: openai.String(descriptor.Instructions),
		Tools:        tools,
	})
	if err != nil {
		return "", NewChatGPTError("create assistant", err)
	}
	log.Debug(fmt.Sprintf("created assistant %s with %d tools", assistant.ID, len(tools)))
	return assistant.ID, nil
}

// UpdateAssistantFiles replaces the assistant's file list with fileIds.
func (client *ChatGPTAssistantClient) UpdateAssistantFiles(ctx context.Context, id string, fileIds []string) error {
	_, err := client.client.Beta.Assistants.Update(ctx, id, openai.BetaAssistantUpdateParams{
		ToolResources: openai.BetaAssistantUpdateParamsToolResources{
			CodeInterpreter: openai.BetaAssistantUpdateParamsToolResourcesCodeInterpreter{
				FileIDs: fileIds,
			},
		},
	})
	if err != nil {
		return NewChatGPTError("update assistant", err)
	}
	return nil
}

func (client *ChatGPTAssistantClient) UploadFile(ctx context.Context, filename string, content io.Reader) (string, error) {
	file, err := client.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(content, filename, "application/octet-stream"),
		Purpose: openai.FilePurposeAssistants,
	})
	if err != nil {
		return "", NewChatGPTError("upload file", err)
	}
	log.Debug(fmt.Sprintf("uploaded file %s as %s", filename, file.ID))
	return file.ID, nil
}

func (client *ChatGPTAssistantClient) CreateThread(ctx context.Context) (string, error) {
	thread, err := client.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", NewChatGPTError("create thread", err)
	}
	return thread.ID, nil
}

func (client *ChatGPTAssistantClient) CreateMessage(ctx context.Context, threadId, text string) error {
	_, err := client.client.Beta.Threads.Messages.New(ctx, threadId, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return NewChatGPTError("create message", err)
	}
	return nil
}

func (client *ChatGPTAssistantClient) CreateRun(ctx context.Context, threadId, assistantId string) (ThreadRun, error) {
	run, err := client.client.Beta.Threads.Runs.New(ctx, threadId, openai.BetaThreadRunNewParams{
		AssistantID: assistantId,
	})
	if err != nil {
		return ThreadRun{}, NewChatGPTError("create run", err)
	}
	return toThreadRun(run), nil
}

func (client *ChatGPTAssistantClient) GetRun(ctx context.Context, threadId, runId string) (ThreadRun, error) {
	run, err := client.client.Beta.Threads.Runs.Get(ctx, threadId, runId)
	if err != nil {
		return ThreadRun{}, NewChatGPTError("get run", err)
	}
	return toThreadRun(run), nil
}

// CancelRun asks for runId to be cancelled. The run reaches a terminal
// status asynchronously.
func (client *ChatGPTAssistantClient) CancelRun(ctx context.Context, threadId, runId string) error {
	if _, err := client.client.Beta.Threads.Runs.Cancel(ctx, threadId, runId); err != nil {
		return NewChatGPTError("cancel run", err)
	}
	return nil
}

// SubmitToolOutputs sends the whole batch of outputs in one request.
func (client *ChatGPTAssistantClient) SubmitToolOutputs(ctx context.Context, threadId, runId string, outputs []ToolOutput) error {
	params := openai.BetaThreadRunSubmitToolOutputsParams{
		ToolOutputs: make([]openai.BetaThreadRunSubmitToolOutputsParamsToolOutput, 0, len(outputs)),
	}
	for _, output := range outputs {
		params.ToolOutputs = append(params.ToolOutputs, openai.BetaThreadRunSubmitToolOutputsParamsToolOutput{
			ToolCallID: openai.String(output.ToolCallId),
			Output:     openai.String(output.Output),
		})
	}

	if _, err := client.client.Beta.Threads.Runs.SubmitToolOutputs(ctx, threadId, runId, params); err != nil {
		return NewChatGPTError("submit tool outputs", err)
	}
	return nil
}

// GetThreadMessages lists every message on the thread, oldest first.
func (client *ChatGPTAssistantClient) GetThreadMessages(ctx context.Context, threadId string) ([]ThreadMessage, error) {
	iter := client.client.Beta.Threads.Messages.ListAutoPaging(ctx, threadId, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderAsc,
	})

	messages := []ThreadMessage{}
	for iter.Next() {
		message := iter.Current()
		content := []string{}
		for _, block := range message.Content {
			if block.Type == "text" {
				content = append(content, block.Text.Value)
			}
		}
		messages = append(messages, ThreadMessage{
			Id:       message.ID,
			ThreadId: message.ThreadID,
			RunId:    message.RunID,
			Role:     MessageRole(message.Role),
			Content:  content,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, NewChatGPTError("list messages", err)
	}
	return messages, nil
}

func toThreadRun(run *openai.Run) ThreadRun {
	result := ThreadRun{
		Id:        run.ID,
		ThreadId:  run.ThreadID,
		Status:    RunStatus(run.Status),
		LastError: run.LastError.Message,
	}
	if result.Status == RunStatusRequiresAction {
		for _, call := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
			result.ToolCalls = append(result.ToolCalls, PendingToolCall{
				Id:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
		}
	}
	return result
}
