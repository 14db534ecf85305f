package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType_Valid(t *testing.T) {
	assert.True(t, JobTypeDiscovery.Valid())
	assert.True(t, JobTypeGenerate.Valid())
	assert.True(t, JobTypeVerifySweep.Valid())
	assert.True(t, JobTypeProbe.Valid())
	assert.True(t, JobTypeBounceApply.Valid())
	assert.False(t, JobType("rules").Valid())
	assert.False(t, JobType("").Valid())
}

func TestJobType_UnmarshalText(t *testing.T) {
	var jt JobType
	require.NoError(t, jt.UnmarshalText([]byte("probe")))
	assert.Equal(t, JobTypeProbe, jt)

	require.NoError(t, jt.UnmarshalText([]byte("  Verify_Sweep ")))
	assert.Equal(t, JobTypeVerifySweep, jt)

	err := jt.UnmarshalText([]byte("telepathy"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JobType")
}

func TestJobStatus_Valid(t *testing.T) {
	assert.True(t, JobStatusPending.Valid())
	assert.True(t, JobStatusRunning.Valid())
	assert.True(t, JobStatusCompleted.Valid())
	assert.True(t, JobStatusFailed.Valid())
	assert.False(t, JobStatus("paused").Valid())
}

func TestCreateJobRequest_Validate(t *testing.T) {
	valid := func() *CreateJobRequest {
		return &CreateJobRequest{
			Type:    JobTypeProbe,
			Payload: json.RawMessage(`{"email_id":1}`),
		}
	}

	assert.NoError(t, valid().Validate())

	req := valid()
	req.Type = JobType("nope")
	assert.EqualError(t, req.Validate(), "invalid job type")

	req = valid()
	req.Payload = nil
	assert.EqualError(t, req.Validate(), "payload is required")

	req = valid()
	req.Priority = -1
	assert.EqualError(t, req.Validate(), "priority must be between 0 and 100")

	req = valid()
	req.Priority = 101
	assert.EqualError(t, req.Validate(), "priority must be between 0 and 100")

	req = valid()
	req.Priority = 100
	assert.NoError(t, req.Validate())

	req = valid()
	req.MaxRetries = -1
	assert.EqualError(t, req.Validate(), "max retries must be >= 0")
}
