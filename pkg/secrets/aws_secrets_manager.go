package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// secretValueGetter is the part of the Secrets Manager client the provider uses
type secretValueGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManagerProvider implements Provider using AWS Secrets Manager.
// Keys are looked up as prefix+key.
type AWSSecretsManagerProvider struct {
	client secretValueGetter
	prefix string
}

// NewAWSSecretsManagerProvider loads the default AWS credential chain for region
func NewAWSSecretsManagerProvider(ctx context.Context, region, prefix string) (*AWSSecretsManagerProvider, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSecretsManagerProvider{
		client: secretsmanager.NewFromConfig(cfg),
		prefix: prefix,
	}, nil
}

func (p *AWSSecretsManagerProvider) GetSecret(ctx context.Context, key string) (string, error) {
	result, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.prefix + key),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get secret %s: %w", key, err)
	}

	if result.SecretString == nil {
		return "", ErrNotFound
	}
	return *result.SecretString, nil
}

// GetSecretJSON retrieves a secret and unmarshals it as JSON
func (p *AWSSecretsManagerProvider) GetSecretJSON(ctx context.Context, key string, v interface{}) error {
	value, err := p.GetSecret(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(value), v)
}
