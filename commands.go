package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

func newServiceFromConfig(config Config) *ChatGPTAssistantClient {
	return NewChatGPTAssistantClient(config.Model, ChatGPTCredentials{
		Secret:  config.APIKey,
		BaseURL: config.BaseURL,
	})
}

// ChatCLICommand runs the interactive session on stdin and stdout. A
// ChatGPT error ends the session with a non-zero exit code.
func ChatCLICommand(ctx context.Context, cmd *cli.Command) error {
	// configure logging for application
	configureLogging(cmd.String("log-level"))

	config, err := loadConfig(cmd)
	if err != nil {
		log.Debug(fmt.Sprintf("%+v", err))
		return cli.Exit(fmt.Sprintf("error loading configuration: %v (is %s set?)", err, apiKeyEnv), 1)
	}

	registry, err := newDefaultRegistry(config)
	if err != nil {
		log.Debug(fmt.Sprintf("error registering functions: %+v", err))
		return cli.Exit("error registering assistant functions", 1)
	}

	service := newServiceFromConfig(config)
	progress := newSpinnerProgress(os.Stderr)
	if err := runInteractive(ctx, config, service, registry, os.Stdin, os.Stdout, progress); err != nil {
		log.Debug(fmt.Sprintf("session ended with error: %+v", err))
		var gptError ChatGPTError
		if errors.As(err, &gptError) {
			return cli.Exit(fmt.Sprintf("Error communicating with ChatGPT: %v", gptError), 1)
		}
		return cli.Exit(fmt.Sprintf("session ended: %v", err), 1)
	}
	return nil
}

// UploadCLICommand uploads every file given as an argument and attaches
// them to the stored assistant, which must already exist.
func UploadCLICommand(ctx context.Context, cmd *cli.Command) error {
	// configure logging for application
	configureLogging(cmd.String("log-level"))

	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return cli.Exit("no files provided for upload", 1)
	}

	config, err := loadConfig(cmd)
	if err != nil {
		log.Debug(fmt.Sprintf("%+v", err))
		return cli.Exit(fmt.Sprintf("error loading configuration: %v", err), 1)
	}

	service := newServiceFromConfig(config)
	store := NewDescriptorStore(config.DescriptorPath, service)
	descriptor, ok := store.Load()
	if !ok {
		return cli.Exit(fmt.Sprintf("no assistant recorded at %s, start a chat first", config.DescriptorPath), 1)
	}

	spinner := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	spinner.Prefix = fmt.Sprintf("Uploading %d files to assistant ", len(paths))
	spinner.Start()

	uploader := NewUploader(service, store, descriptor)
	fileIds, errors := uploader.UploadAll(ctx, paths)
	spinner.Stop()

	for _, e := range errors {
		log.Error(fmt.Sprintf("error uploading file: %v", e))
	}
	log.Info(fmt.Sprintf("attached %d files to assistant %s", len(fileIds), descriptor.AssistantId))
	if len(errors) > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d files could not be uploaded", len(errors), len(paths)), 1)
	}
	return nil
}

// CheckCLICommand verifies the configured credentials and model, and the
// stored assistant when there is one.
func CheckCLICommand(ctx context.Context, cmd *cli.Command) error {
	// configure logging for application
	configureLogging(cmd.String("log-level"))

	config, err := loadConfig(cmd)
	if err != nil {
		log.Debug(fmt.Sprintf("%+v", err))
		return cli.Exit(fmt.Sprintf("error loading configuration: %v", err), 1)
	}

	client := newServiceFromConfig(config)
	if err := client.VerifyCredentials(ctx); err != nil {
		log.Debug(fmt.Sprintf("error verifying chatgpt credentials: %+v", err))
		return cli.Exit("error validating chatgpt credentials", 1)
	}

	if err := client.GetModel(ctx, config.Model); err != nil {
		log.Debug(fmt.Sprintf("error fetching model %s from chatgpt api: %+v", config.Model, err))
		return cli.Exit("error validating chatgpt model", 1)
	}

	descriptor, ok := NewDescriptorStore(config.DescriptorPath, client).Load()
	if !ok {
		log.Info(fmt.Sprintf("no assistant recorded at %s, one will be created on the next chat", config.DescriptorPath))
		return nil
	}

	if err := client.GetAssistant(ctx, descriptor.AssistantId); err != nil {
		log.Debug(fmt.Sprintf("error fetching assistant %s from chatgpt api: %+v", descriptor.AssistantId, err))
		return cli.Exit("error validating chatgpt assistant", 1)
	}
	log.Info(fmt.Sprintf("assistant %s is reachable", descriptor.AssistantId))
	return nil
}
