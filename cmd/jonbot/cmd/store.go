package cmd

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	appconfig "github.com/savaki/jonbot/pkg/config"
	"github.com/savaki/jonbot/pkg/dynamodb"
	"github.com/savaki/jonbot/pkg/tenant"
)

// loadAWSConfig loads the default AWS config chain. It is loaded once and
// shared by the DynamoDB store and the Bedrock provider.
func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return awsCfg, nil
}

// openStore builds the tenant store selected by CONFIG_STORE
func openStore(cfg *appconfig.Config, awsCfg aws.Config) (tenant.Store, error) {
	switch cfg.ConfigStore {
	case appconfig.StoreDynamoDB:
		return dynamodb.NewTenantRepository(dynamodb.NewClientWithConfig(awsCfg), cfg.TenantTable), nil
	case appconfig.StoreFile:
		return tenant.NewFileStore(cfg.ConfigDir), nil
	default:
		return nil, fmt.Errorf("unknown config store %q", cfg.ConfigStore)
	}
}
