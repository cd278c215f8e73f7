// Package bootstrap builds the service graph shared by the Lambda entry point,
// the development server and the ingestion command. Environment variables are
// read by the callers, never here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"property-agent/handler"
	"property-agent/internal/integrations/openai"
	"property-agent/internal/integrations/paramstore"
	"property-agent/internal/integrations/resend"
	"property-agent/internal/integrations/vector"
	"property-agent/internal/offers"
	"property-agent/internal/repository"
	"property-agent/internal/usecase"
)

type Config struct {
	StateTable  string
	ParamPrefix string
	VectorURL   string
	MailFrom    string
	Limits      usecase.ChatLimits
}

// LoadAWS resolves credentials and region the standard SDK way.
func LoadAWS(ctx context.Context) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	return cfg, nil
}

// Handler wires every dependency of the HTTP surface.
func Handler(awsCfg aws.Config, cfg Config) (*handler.Handler, error) {
	if cfg.StateTable == "" || cfg.MailFrom == "" {
		return nil, errors.New("bootstrap: state table and mail sender are required")
	}
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg), cfg.ParamPrefix)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: parameter store: %w", err)
	}

	gateway, err := offerGateway(params, cfg.VectorURL)
	if err != nil {
		return nil, err
	}
	sessions, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: session store: %w", err)
	}
	llm, err := openai.NewClient(paramstore.NewToken(params, params.Name("/open-ai-token")))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: openai client: %w", err)
	}
	mailer, err := resend.NewClient(paramstore.NewToken(params, params.Name("/resend-token")))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: resend client: %w", err)
	}

	settings, err := usecase.NewSettings(params, cfg.ParamPrefix)
	if err != nil {
		return nil, err
	}
	chat, err := usecase.NewChatService(settings, llm, gateway, sessions, cfg.Limits)
	if err != nil {
		return nil, err
	}
	drafts, err := usecase.NewLLMDrafts(settings, llm)
	if err != nil {
		return nil, err
	}
	sender, err := usecase.NewMailSender(mailer, cfg.MailFrom)
	if err != nil {
		return nil, err
	}
	email, err := usecase.NewEmailService(sessions, drafts, drafts, sender)
	if err != nil {
		return nil, err
	}
	offerService, err := usecase.NewOfferService(gateway)
	if err != nil {
		return nil, err
	}
	return handler.NewHandler(chat, email, offerService)
}

// Offers wires the listing store on its own, for tools that only manage
// listings.
func Offers(awsCfg aws.Config, paramPrefix, vectorURL string) (*offers.Gateway, error) {
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg), paramPrefix)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: parameter store: %w", err)
	}
	return offerGateway(params, vectorURL)
}

func offerGateway(params *paramstore.Client, vectorURL string) (*offers.Gateway, error) {
	index, err := vector.NewClient(vectorURL, paramstore.NewToken(params, params.Name("/vector-token")))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: vector client: %w", err)
	}
	return offers.New(index)
}
