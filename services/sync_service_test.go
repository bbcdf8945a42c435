package services

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSyncService_NonEmptyBatchAdvancesWatermark(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	memberships := mocks.NewMockIMembershipStore(ctrl)
	messages := mocks.NewMockIMessageStore(ctrl)

	batch := []domain.Message{
		{ID: uuid.New(), ConversationID: "c-general", Body: "one"},
		{ID: uuid.New(), ConversationID: "c-general", Body: "two"},
	}
	after := uuid.New()

	memberships.EXPECT().IsMember(domain.ConversationID("c-general"), domain.UserID("u-bob")).
		Return(true, nil)
	messages.EXPECT().ListAfter(domain.ConversationID("c-general"), &after, 100).
		Return(batch, nil)
	// The watermark moves to the LAST message of the batch
	memberships.EXPECT().TouchLastSeen(domain.ConversationID("c-general"),
		domain.UserID("u-bob"), batch[1].ID, gomock.Any()).
		Return(nil)

	service := NewSyncService(memberships, messages, 100, slog.Default())
	result, err := service.Sync(context.Background(), "u-bob", "c-general", &after)

	req.NoError(err)
	req.Equal(batch, result)
}

func TestSyncService_EmptyBatchLeavesWatermarkAlone(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	memberships := mocks.NewMockIMembershipStore(ctrl)
	messages := mocks.NewMockIMessageStore(ctrl)

	memberships.EXPECT().IsMember(gomock.Any(), gomock.Any()).Return(true, nil)
	messages.EXPECT().ListAfter(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, nil)
	// No TouchLastSeen expectation: it must not be called

	service := NewSyncService(memberships, messages, 100, slog.Default())
	result, err := service.Sync(context.Background(), "u-bob", "c-general", nil)

	req.NoError(err)
	req.Empty(result)
}

func TestSyncService_NonMemberIsRejected(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	memberships := mocks.NewMockIMembershipStore(ctrl)
	messages := mocks.NewMockIMessageStore(ctrl)

	memberships.EXPECT().IsMember(domain.ConversationID("c-general"), domain.UserID("u-mallory")).
		Return(false, nil)

	service := NewSyncService(memberships, messages, 100, slog.Default())
	_, err := service.Sync(context.Background(), "u-mallory", "c-general", nil)

	req.ErrorIs(err, errors.ErrAuthorization)
}

func TestSyncService_WatermarkTouchFailureNeverWithholdsBatch(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	memberships := mocks.NewMockIMembershipStore(ctrl)
	messages := mocks.NewMockIMessageStore(ctrl)

	batch := []domain.Message{{ID: uuid.New(), ConversationID: "c-general", Body: "one"}}

	memberships.EXPECT().IsMember(gomock.Any(), gomock.Any()).Return(true, nil)
	messages.EXPECT().ListAfter(gomock.Any(), gomock.Any(), gomock.Any()).Return(batch, nil)
	memberships.EXPECT().TouchLastSeen(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("disk on fire"))

	service := NewSyncService(memberships, messages, 100, slog.Default())
	result, err := service.Sync(context.Background(), "u-bob", "c-general", nil)

	// Best-effort side effect: the caller still gets the messages
	req.NoError(err)
	req.Equal(batch, result)
}

func TestSyncService_BatchSizeDefaultsWhenUnset(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	memberships := mocks.NewMockIMembershipStore(ctrl)
	messages := mocks.NewMockIMessageStore(ctrl)

	memberships.EXPECT().IsMember(gomock.Any(), gomock.Any()).Return(true, nil)
	messages.EXPECT().ListAfter(gomock.Any(), gomock.Any(), DefaultSyncBatchSize).
		Return(nil, nil)

	service := NewSyncService(memberships, messages, 0, slog.Default())
	_, err := service.Sync(context.Background(), "u-bob", "c-general", nil)
	req.NoError(err)
}
