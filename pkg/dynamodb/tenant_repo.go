package dynamodb

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/samber/mo"

	"github.com/savaki/jonbot/pkg/models"
	"github.com/savaki/jonbot/pkg/tenant"
)

// defaultTeamKey stores the config used when a request carries no team id.
// DynamoDB rejects empty key values.
const defaultTeamKey = "_default"

// tenantItem is the table layout: one item per team keyed by team_id
type tenantItem struct {
	TeamID string `dynamodbav:"team_id"`
	models.TenantConfig
}

// TenantRepository stores tenant configs in a DynamoDB table
type TenantRepository struct {
	client    API
	tableName string
}

var _ tenant.Store = (*TenantRepository)(nil)

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(client API, tableName string) *TenantRepository {
	return &TenantRepository{
		client:    client,
		tableName: tableName,
	}
}

// Get retrieves the config for teamID
func (r *TenantRepository) Get(ctx context.Context, teamID string) (mo.Option[models.TenantConfig], error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            teamKey(teamID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return mo.None[models.TenantConfig](), fmt.Errorf("get item: %w", err)
	}

	if result.Item == nil {
		return mo.None[models.TenantConfig](), nil
	}

	var item tenantItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return mo.None[models.TenantConfig](), fmt.Errorf("unmarshal tenant config: %w", err)
	}

	return mo.Some(item.TenantConfig), nil
}

// Put replaces the config for teamID
func (r *TenantRepository) Put(ctx context.Context, teamID string, cfg models.TenantConfig) error {
	item, err := attributevalue.MarshalMap(tenantItem{TeamID: keyFor(teamID), TenantConfig: cfg})
	if err != nil {
		return fmt.Errorf("marshal tenant config: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}

	log.Printf("Saved tenant config for team %s to DynamoDB", keyFor(teamID))
	return nil
}

func keyFor(teamID string) string {
	if teamID == "" {
		return defaultTeamKey
	}
	return teamID
}

func teamKey(teamID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"team_id": &types.AttributeValueMemberS{Value: keyFor(teamID)},
	}
}
