package service_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"opsdeck.app/chat/common/id"
	"opsdeck.app/chat/internal/model"
	"opsdeck.app/chat/internal/service"
	"opsdeck.app/chat/internal/store"
)

var _ = Describe("ConversationService", func() {
	var (
		svc      service.ConversationService
		stores   *mockStores
		producer *mockProducer
		ctx      context.Context
	)

	agent := model.User{ID: 10, Name: "Ana", Role: model.RoleAgent, Active: true}

	BeforeEach(func() {
		ctx = context.Background()
		stores = newMockStores()
		producer = &mockProducer{}

		Expect(id.Init(1)).To(Succeed())

		svc = service.NewConversationService(
			&mockTxRunner{stores: stores},
			stores.users,
			stores.clients,
			stores.conversations,
			stores.messages,
			producer,
		)
	})

	Describe("OpenOrCreateDM", func() {
		target := model.User{ID: 20, Name: "Ben", Role: model.RoleAgent, Active: true}

		BeforeEach(func() {
			stores.users.getByIDFn = func(_ context.Context, uid int64) (*model.User, error) {
				if uid == target.ID {
					t := target
					return &t, nil
				}
				return nil, store.ErrNotFound
			}
		})

		It("creates a dm keyed by the sorted pair", func() {
			var capturedKey *string
			var capturedParticipants []model.Participant
			stores.conversations.insertFn = func(_ context.Context, conv *model.Conversation, dmKey *string) error {
				capturedKey = dmKey
				return nil
			}
			stores.conversations.addParticipantsFn = func(_ context.Context, _ int64, participants []model.Participant) error {
				capturedParticipants = participants
				return nil
			}

			conv, err := svc.OpenOrCreateDM(ctx, agent, target.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Type).To(Equal(model.ConversationTypeDM))
			Expect(capturedKey).NotTo(BeNil())
			Expect(*capturedKey).To(Equal("10:20"))
			Expect(capturedParticipants).To(HaveLen(2))
		})

		It("returns the existing dm regardless of who opens it", func() {
			existing := &model.Conversation{ID: 77, Type: model.ConversationTypeDM}
			stores.conversations.getDMByKeyFn = func(_ context.Context, key string) (*model.Conversation, error) {
				Expect(key).To(Equal("10:20"))
				return existing, nil
			}
			stores.users.getByIDFn = func(_ context.Context, uid int64) (*model.User, error) {
				u := model.User{ID: uid, Role: model.RoleAgent, Active: true}
				return &u, nil
			}

			fromActor, err := svc.OpenOrCreateDM(ctx, agent, target.ID)
			Expect(err).NotTo(HaveOccurred())

			fromTarget, err := svc.OpenOrCreateDM(ctx, target, agent.ID)
			Expect(err).NotTo(HaveOccurred())

			Expect(fromActor.ID).To(Equal(existing.ID))
			Expect(fromTarget.ID).To(Equal(existing.ID))
			Expect(stores.conversations.insertCalls).To(BeZero())
		})

		It("retries as a lookup when a concurrent opener wins the insert", func() {
			winner := &model.Conversation{ID: 88, Type: model.ConversationTypeDM}
			lookedUp := false
			stores.conversations.insertFn = func(_ context.Context, _ *model.Conversation, _ *string) error {
				return store.ErrDuplicate
			}
			stores.conversations.getDMByKeyFn = func(_ context.Context, _ string) (*model.Conversation, error) {
				if lookedUp {
					return winner, nil
				}
				lookedUp = true
				return nil, store.ErrNotFound
			}

			conv, err := svc.OpenOrCreateDM(ctx, agent, target.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(conv.ID).To(Equal(winner.ID))
		})

		It("rejects a dm with yourself", func() {
			_, err := svc.OpenOrCreateDM(ctx, agent, agent.ID)
			Expect(err).To(MatchError(service.ErrInvalidTarget))
		})

		It("returns not found for an unknown target", func() {
			_, err := svc.OpenOrCreateDM(ctx, agent, 999)
			Expect(err).To(MatchError(service.ErrNotFound))
		})

		It("forbids an agent from opening a dm with a client", func() {
			clientID := int64(5)
			stores.users.getByIDFn = func(_ context.Context, uid int64) (*model.User, error) {
				return &model.User{ID: uid, Role: model.RoleClient, ClientID: &clientID, Active: true}, nil
			}

			_, err := svc.OpenOrCreateDM(ctx, agent, 30)
			Expect(err).To(MatchError(service.ErrForbidden))
		})

		It("forbids a client from reaching anyone but their assigned am", func() {
			clientID := int64(5)
			amID := int64(40)
			clientUser := model.User{ID: 30, Role: model.RoleClient, ClientID: &clientID, Active: true}

			stores.clients.getByIDFn = func(_ context.Context, _ int64) (*model.Client, error) {
				return &model.Client{ID: clientID, AMID: &amID}, nil
			}
			stores.users.getByIDFn = func(_ context.Context, uid int64) (*model.User, error) {
				return &model.User{ID: uid, Role: model.RoleAM, Active: true}, nil
			}

			By("allowing the assigned am")
			_, err := svc.OpenOrCreateDM(ctx, clientUser, amID)
			Expect(err).NotTo(HaveOccurred())

			By("rejecting a different am")
			_, err = svc.OpenOrCreateDM(ctx, clientUser, 41)
			Expect(err).To(MatchError(service.ErrForbidden))
		})
	})

	Describe("AddParticipants", func() {
		group := &model.Conversation{ID: 50, Type: model.ConversationTypeGroup, CreatedByID: agent.ID}

		BeforeEach(func() {
			stores.conversations.getParticipantFn = func(_ context.Context, _ int64, uid int64) (*model.Participant, error) {
				if uid == agent.ID {
					return &model.Participant{ConversationID: group.ID, UserID: uid}, nil
				}
				return nil, store.ErrNotFound
			}
			stores.conversations.getByIDFn = func(_ context.Context, _ int64) (*model.Conversation, error) {
				g := *group
				return &g, nil
			}
			stores.conversations.listParticipantsFn = func(_ context.Context, _ int64) ([]model.Participant, error) {
				return []model.Participant{{UserID: agent.ID}, {UserID: 21}}, nil
			}
			stores.users.getByIDsFn = func(_ context.Context, ids []int64) ([]model.User, error) {
				users := make([]model.User, 0, len(ids))
				for _, uid := range ids {
					users = append(users, model.User{ID: uid, Role: model.RoleAgent, Active: true})
				}
				return users, nil
			}
		})

		It("adds only the users not already present", func() {
			var added []model.Participant
			stores.conversations.addParticipantsFn = func(_ context.Context, _ int64, participants []model.Participant) error {
				added = participants
				return nil
			}

			err := svc.AddParticipants(ctx, agent, group.ID, []int64{21, 22, 22, 23})

			Expect(err).NotTo(HaveOccurred())
			Expect(added).To(HaveLen(2))
			Expect(added[0].UserID).To(Equal(int64(22)))
			Expect(added[1].UserID).To(Equal(int64(23)))
		})

		It("is a no-op when everyone is already a participant", func() {
			stores.conversations.addParticipantsFn = func(_ context.Context, _ int64, _ []model.Participant) error {
				Fail("should not insert")
				return nil
			}

			Expect(svc.AddParticipants(ctx, agent, group.ID, []int64{21})).To(Succeed())
		})

		It("rejects unknown users", func() {
			stores.users.getByIDsFn = func(_ context.Context, _ []int64) ([]model.User, error) {
				return []model.User{}, nil
			}

			err := svc.AddParticipants(ctx, agent, group.ID, []int64{999})
			Expect(err).To(MatchError(service.ErrInvalidInput))
		})

		It("refuses to grow a dm", func() {
			stores.conversations.getByIDFn = func(_ context.Context, _ int64) (*model.Conversation, error) {
				return &model.Conversation{ID: group.ID, Type: model.ConversationTypeDM}, nil
			}

			err := svc.AddParticipants(ctx, agent, group.ID, []int64{22})
			Expect(err).To(MatchError(service.ErrConflict))
		})

		It("answers not found when the actor is not a participant", func() {
			outsider := model.User{ID: 99, Role: model.RoleAgent}

			err := svc.AddParticipants(ctx, outsider, group.ID, []int64{22})
			Expect(err).To(MatchError(service.ErrNotFound))
		})
	})

	Describe("RemoveParticipant", func() {
		group := &model.Conversation{ID: 50, Type: model.ConversationTypeGroup, CreatedByID: agent.ID}

		BeforeEach(func() {
			stores.conversations.getParticipantFn = func(_ context.Context, _ int64, uid int64) (*model.Participant, error) {
				if uid == agent.ID {
					return &model.Participant{}, nil
				}
				return nil, store.ErrNotFound
			}
			stores.conversations.getByIDFn = func(_ context.Context, _ int64) (*model.Conversation, error) {
				g := *group
				return &g, nil
			}
		})

		It("refuses to remove the conversation owner", func() {
			err := svc.RemoveParticipant(ctx, agent, group.ID, agent.ID)
			Expect(err).To(MatchError(service.ErrConflict))
		})

		It("removes a member", func() {
			removed := int64(0)
			stores.conversations.removeParticipantFn = func(_ context.Context, _ int64, uid int64) error {
				removed = uid
				return nil
			}

			Expect(svc.RemoveParticipant(ctx, agent, group.ID, 21)).To(Succeed())
			Expect(removed).To(Equal(int64(21)))
		})
	})

	Describe("SendMessage", func() {
		BeforeEach(func() {
			stores.conversations.getParticipantFn = func(_ context.Context, _ int64, _ int64) (*model.Participant, error) {
				return &model.Participant{}, nil
			}
		})

		It("persists the message and emits a created event", func() {
			var inserted *model.Message
			stores.messages.insertFn = func(_ context.Context, msg *model.Message) error {
				inserted = msg
				return nil
			}

			msg, err := svc.SendMessage(ctx, agent, 50, service.SendMessageInput{Content: "hello"})

			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).NotTo(BeNil())
			Expect(msg.SenderID).To(Equal(agent.ID))
			Expect(msg.Type).To(Equal(model.MessageTypeText))

			Expect(producer.events).To(HaveLen(1))
			Expect(producer.events[0].MessageID).To(Equal(msg.ID))
			Expect(producer.events[0].ConversationID).To(Equal(int64(50)))
		})

		It("rejects an empty message", func() {
			_, err := svc.SendMessage(ctx, agent, 50, service.SendMessageInput{Content: "   "})
			Expect(err).To(MatchError(service.ErrInvalidInput))
		})

		It("does not emit when the insert fails", func() {
			stores.messages.insertFn = func(_ context.Context, _ *model.Message) error {
				return errors.New("boom")
			}

			_, err := svc.SendMessage(ctx, agent, 50, service.SendMessageInput{Content: "hello"})

			Expect(err).To(HaveOccurred())
			Expect(producer.events).To(BeEmpty())
		})

		It("answers not found for non-participants", func() {
			stores.conversations.getParticipantFn = func(_ context.Context, _ int64, _ int64) (*model.Participant, error) {
				return nil, store.ErrNotFound
			}

			_, err := svc.SendMessage(ctx, agent, 50, service.SendMessageInput{Content: "hello"})
			Expect(err).To(MatchError(service.ErrNotFound))
		})
	})

	Describe("MarkRead", func() {
		It("stamps the watermark for the participant", func() {
			var stamped time.Time
			stores.conversations.markReadFn = func(_ context.Context, convID, uid int64, readAt time.Time) error {
				Expect(convID).To(Equal(int64(50)))
				Expect(uid).To(Equal(agent.ID))
				stamped = readAt
				return nil
			}

			Expect(svc.MarkRead(ctx, agent, 50)).To(Succeed())
			Expect(stamped).To(BeTemporally("~", time.Now(), time.Second))
		})

		It("answers not found for non-participants", func() {
			stores.conversations.markReadFn = func(_ context.Context, _, _ int64, _ time.Time) error {
				return store.ErrNotFound
			}

			Expect(svc.MarkRead(ctx, agent, 50)).To(MatchError(service.ErrNotFound))
		})
	})

	Describe("DeleteMessage", func() {
		msg := &model.Message{ID: 300, ConversationID: 50, SenderID: agent.ID}

		BeforeEach(func() {
			stores.conversations.getParticipantFn = func(_ context.Context, _ int64, _ int64) (*model.Participant, error) {
				return &model.Participant{}, nil
			}
			stores.messages.getByIDFn = func(_ context.Context, _ int64) (*model.Message, error) {
				m := *msg
				return &m, nil
			}
		})

		It("lets the sender soft-delete their own message", func() {
			deleted := int64(0)
			stores.messages.softDeleteFn = func(_ context.Context, mid int64, _ time.Time) error {
				deleted = mid
				return nil
			}

			Expect(svc.DeleteMessage(ctx, agent, 50, msg.ID)).To(Succeed())
			Expect(deleted).To(Equal(msg.ID))
		})

		It("forbids other members", func() {
			other := model.User{ID: 21, Role: model.RoleAgent}

			Expect(svc.DeleteMessage(ctx, other, 50, msg.ID)).To(MatchError(service.ErrForbidden))
		})

		It("lets an admin delete any message", func() {
			admin := model.User{ID: 1, Role: model.RoleAdmin}

			Expect(svc.DeleteMessage(ctx, admin, 50, msg.ID)).To(Succeed())
		})
	})

	Describe("ListMessages", func() {
		It("clamps take and passes the cursor through", func() {
			stores.conversations.getParticipantFn = func(_ context.Context, _ int64, _ int64) (*model.Participant, error) {
				return &model.Participant{}, nil
			}

			var gotTake int32
			var gotCursor *time.Time
			stores.messages.listByConversationFn = func(_ context.Context, _ int64, cursor *time.Time, take int32) ([]model.Message, error) {
				gotTake = take
				gotCursor = cursor
				return []model.Message{}, nil
			}

			cursor := time.Now().Add(-time.Hour)
			_, err := svc.ListMessages(ctx, agent, 50, &cursor, 1000)

			Expect(err).NotTo(HaveOccurred())
			Expect(gotTake).To(Equal(int32(200)))
			Expect(gotCursor).To(Equal(&cursor))
		})
	})

	Describe("Create", func() {
		It("rejects team conversations opened directly", func() {
			_, err := svc.Create(ctx, agent, service.CreateConversationInput{Type: model.ConversationTypeTeam})
			Expect(err).To(MatchError(service.ErrInvalidInput))
		})

		It("always includes the creator as owner", func() {
			var participants []model.Participant
			stores.conversations.addParticipantsFn = func(_ context.Context, _ int64, ps []model.Participant) error {
				participants = ps
				return nil
			}

			title := "triage"
			conv, err := svc.Create(ctx, agent, service.CreateConversationInput{
				Type:      model.ConversationTypeGroup,
				Title:     &title,
				MemberIDs: []int64{21, 22},
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(conv.CreatedByID).To(Equal(agent.ID))
			Expect(participants).To(HaveLen(3))
			Expect(participants[0].UserID).To(Equal(agent.ID))
			Expect(participants[0].Role).To(Equal(model.ParticipantRoleOwner))
		})

		It("runs a dm through the role matrix like the dedicated endpoint", func() {
			clientID := int64(5)
			amID := int64(40)
			clientUser := model.User{ID: 30, Role: model.RoleClient, ClientID: &clientID, Active: true}
			stores.clients.getByIDFn = func(_ context.Context, _ int64) (*model.Client, error) {
				return &model.Client{ID: clientID, AMID: &amID}, nil
			}
			stores.users.getByIDFn = func(_ context.Context, uid int64) (*model.User, error) {
				return &model.User{ID: uid, Role: model.RoleAgent, Active: true}, nil
			}

			_, err := svc.Create(ctx, clientUser, service.CreateConversationInput{
				Type:      model.ConversationTypeDM,
				MemberIDs: []int64{77},
			})

			Expect(err).To(MatchError(service.ErrForbidden))
			Expect(stores.conversations.insertCalls).To(BeZero())
		})

		It("returns the existing dm for a pair instead of a duplicate error", func() {
			existing := &model.Conversation{ID: 77, Type: model.ConversationTypeDM}
			stores.users.getByIDFn = func(_ context.Context, uid int64) (*model.User, error) {
				return &model.User{ID: uid, Role: model.RoleAgent, Active: true}, nil
			}
			stores.conversations.getDMByKeyFn = func(_ context.Context, key string) (*model.Conversation, error) {
				Expect(key).To(Equal("10:20"))
				return existing, nil
			}

			conv, err := svc.Create(ctx, agent, service.CreateConversationInput{
				Type:      model.ConversationTypeDM,
				MemberIDs: []int64{20},
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(conv.ID).To(Equal(existing.ID))
			Expect(stores.conversations.insertCalls).To(BeZero())
		})

		It("rejects a dm without exactly one other participant", func() {
			_, err := svc.Create(ctx, agent, service.CreateConversationInput{
				Type:      model.ConversationTypeDM,
				MemberIDs: []int64{20, 21},
			})
			Expect(err).To(MatchError(service.ErrInvalidInput))
		})
	})

	Describe("Get", func() {
		conv := &model.Conversation{ID: 50, Type: model.ConversationTypeGroup, CreatedByID: agent.ID}

		BeforeEach(func() {
			stores.conversations.getByIDFn = func(_ context.Context, cid int64) (*model.Conversation, error) {
				if cid == conv.ID {
					c := *conv
					return &c, nil
				}
				return nil, store.ErrNotFound
			}
			stores.conversations.listParticipantsFn = func(_ context.Context, _ int64) ([]model.Participant, error) {
				return []model.Participant{
					{ConversationID: conv.ID, UserID: agent.ID, Role: model.ParticipantRoleOwner},
					{ConversationID: conv.ID, UserID: 20, Role: model.ParticipantRoleMember},
				}, nil
			}
		})

		It("returns the conversation with roster and the caller's unread count", func() {
			stores.conversations.getParticipantFn = func(_ context.Context, _ int64, _ int64) (*model.Participant, error) {
				return &model.Participant{}, nil
			}
			stores.messages.unreadCountFn = func(_ context.Context, cid, uid int64) (int64, error) {
				Expect(cid).To(Equal(conv.ID))
				Expect(uid).To(Equal(agent.ID))
				return 3, nil
			}

			got, unread, err := svc.Get(ctx, agent, conv.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(conv.ID))
			Expect(got.Participants).To(HaveLen(2))
			Expect(unread).To(Equal(int64(3)))
		})

		It("answers not found for non-participants", func() {
			_, _, err := svc.Get(ctx, agent, conv.ID)
			Expect(err).To(MatchError(service.ErrNotFound))
		})
	})
})
