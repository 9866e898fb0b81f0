package config

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ssmAPI is the subset of the SSM client used for secrets.
// *ssm.Client satisfies it.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

func newSSMClient(ctx context.Context) (*ssm.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("config: load AWS config: %w", err)
	}
	return ssm.NewFromConfig(awsCfg), nil
}

// LoadSecrets fills each empty secret in cfg from the parameter
// <SSMPrefix>/<name>. Secrets already set in the environment win, and
// parameters that do not exist are skipped.
func LoadSecrets(ctx context.Context, cfg *Config, api ssmAPI) error {
	if cfg.SSMPrefix == "" {
		return nil
	}
	if api == nil {
		return errors.New("config: ssm api must not be nil")
	}

	secrets := []struct {
		name string
		dst  *string
	}{
		{"ledger-token", &cfg.LedgerToken},
		{"anthropic-api-key", &cfg.AnthropicKey},
		{"openai-api-key", &cfg.OpenAIKey},
		{"google-api-key", &cfg.GoogleKey},
		{"webhook-token", &cfg.WebhookToken},
	}

	withDecryption := true
	for _, s := range secrets {
		if *s.dst != "" {
			continue
		}
		name := cfg.SSMPrefix + "/" + s.name
		out, err := api.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           &name,
			WithDecryption: &withDecryption,
		})
		if err != nil {
			var notFound *types.ParameterNotFound
			if errors.As(err, &notFound) {
				continue
			}
			return fmt.Errorf("config: get parameter %q: %w", name, err)
		}
		if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
			return fmt.Errorf("config: parameter %q missing value", name)
		}
		*s.dst = *out.Parameter.Value
	}
	return nil
}
