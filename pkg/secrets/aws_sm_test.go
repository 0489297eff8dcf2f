package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretsAPI struct {
	value *string
	err   error
	asked string
}

func (f *fakeSecretsAPI) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.asked = aws.ToString(in.SecretId)
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

func TestAWSProvider_GetSecret_DecodesJSON(t *testing.T) {
	api := &fakeSecretsAPI{value: aws.String(`{"email":"ops@farm.io","password":"pw"}`)}
	p := &AWSSecretsManagerProvider{client: api}

	got, err := p.GetSecret(context.Background(), "dev/greenhouse/operator")
	require.NoError(t, err)
	assert.Equal(t, "dev/greenhouse/operator", api.asked)
	assert.Equal(t, "ops@farm.io", got["email"])
	assert.Equal(t, "pw", got["password"])
}

func TestAWSProvider_GetSecret_InvalidJSON(t *testing.T) {
	p := &AWSSecretsManagerProvider{client: &fakeSecretsAPI{value: aws.String("not-json")}}

	_, err := p.GetSecret(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid secret format")
}

func TestAWSProvider_GetSecret_NilString(t *testing.T) {
	p := &AWSSecretsManagerProvider{client: &fakeSecretsAPI{}}

	_, err := p.GetSecret(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no string value")
}

func TestAWSProvider_GetSecret_APIError(t *testing.T) {
	p := &AWSSecretsManagerProvider{client: &fakeSecretsAPI{err: errors.New("access denied")}}

	_, err := p.GetSecret(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
