package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretsManagerAPI is the subset of the AWS Secrets Manager client in use.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
}

// AWSConfig holds Secrets Manager settings.
type AWSConfig struct {
	Region  string
	Profile string
}

// AWSOption configures an AWSProvider.
type AWSOption func(*AWSProvider)

// WithAWSClient injects a custom Secrets Manager client.
func WithAWSClient(c SecretsManagerAPI) AWSOption {
	return func(p *AWSProvider) {
		if c != nil {
			p.client = c
		}
	}
}

// AWSProvider reads secrets from AWS Secrets Manager. A reference maps to the
// secret id "<namespace>/<name>" (or just name) and its version to a VersionId.
type AWSProvider struct {
	cfg    AWSConfig
	now    func() time.Time
	mu     sync.Mutex
	client SecretsManagerAPI
}

// NewAWSProvider builds a provider; the client is created lazily on first use.
func NewAWSProvider(cfg AWSConfig, opts ...AWSOption) *AWSProvider {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	p := &AWSProvider{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *AWSProvider) ensureClient(ctx context.Context) (SecretsManagerAPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(p.cfg.Region),
	}
	if p.cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(p.cfg.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("secrets: aws: load config: %w", err)
	}
	p.client = secretsmanager.NewFromConfig(cfg)
	return p.client, nil
}

func secretID(ref Reference) string {
	if ref.Namespace == "" {
		return ref.Name
	}
	return ref.Namespace + "/" + ref.Name
}

func (p *AWSProvider) Get(ctx context.Context, ref Reference) (SecretValue, error) {
	if err := ValidateReference(ref); err != nil {
		return SecretValue{}, err
	}
	client, err := p.ensureClient(ctx)
	if err != nil {
		return SecretValue{}, err
	}
	input := &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID(ref))}
	if ref.Version != "" {
		input.VersionId = aws.String(ref.Version)
	}
	out, err := client.GetSecretValue(ctx, input)
	if err != nil {
		return SecretValue{}, translateAWSError(err)
	}
	data := out.SecretBinary
	if out.SecretString != nil {
		data = []byte(aws.ToString(out.SecretString))
	}
	if len(data) == 0 {
		return SecretValue{}, ErrEmptyValue
	}
	return SecretValue{
		Data:      data,
		Version:   aws.ToString(out.VersionId),
		Retrieved: p.now().UTC(),
		Metadata:  map[string]any{"arn": aws.ToString(out.ARN)},
	}, nil
}

func (p *AWSProvider) Put(ctx context.Context, ref Reference, value []byte) (string, error) {
	if err := ValidateReference(ref); err != nil {
		return "", err
	}
	if len(value) == 0 {
		return "", ErrEmptyValue
	}
	client, err := p.ensureClient(ctx)
	if err != nil {
		return "", err
	}
	out, err := client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(secretID(ref)),
		SecretString: aws.String(string(value)),
	})
	if err != nil {
		return "", translateAWSError(err)
	}
	return aws.ToString(out.VersionId), nil
}

func (p *AWSProvider) Delete(ctx context.Context, ref Reference) error {
	if err := ValidateReference(ref); err != nil {
		return err
	}
	client, err := p.ensureClient(ctx)
	if err != nil {
		return err
	}
	_, err = client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{SecretId: aws.String(secretID(ref))})
	return translateAWSError(err)
}

func (p *AWSProvider) Describe(ctx context.Context, ref Reference) (map[string]any, error) {
	if err := ValidateReference(ref); err != nil {
		return nil, err
	}
	client, err := p.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{SecretId: aws.String(secretID(ref))})
	if err != nil {
		return nil, translateAWSError(err)
	}
	meta := map[string]any{
		"name": aws.ToString(out.Name),
		"arn":  aws.ToString(out.ARN),
	}
	if out.LastChangedDate != nil {
		meta["last_changed"] = *out.LastChangedDate
	}
	return meta, nil
}

func translateAWSError(err error) error {
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, notFound.ErrorMessage())
	}
	return fmt.Errorf("secrets: aws: %w", err)
}
