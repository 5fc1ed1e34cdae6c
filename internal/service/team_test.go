package service_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"opsdeck.app/chat/common/id"
	"opsdeck.app/chat/internal/model"
	"opsdeck.app/chat/internal/service"
	"opsdeck.app/chat/internal/store"
)

var _ = Describe("TeamService", func() {
	var (
		svc    service.TeamService
		stores *mockStores
		ctx    context.Context
	)

	team := model.Team{ID: 7, Name: "Fulfillment"}
	member := model.User{ID: 10, Role: model.RoleAgent, Active: true}

	BeforeEach(func() {
		ctx = context.Background()
		stores = newMockStores()

		Expect(id.Init(1)).To(Succeed())

		stores.teams.getByIDFn = func(_ context.Context, _ int64) (*model.Team, error) {
			t := team
			return &t, nil
		}
		stores.teams.listMemberIDsFn = func(_ context.Context, _ int64) ([]int64, error) {
			return []int64{10, 11, 12}, nil
		}

		svc = service.NewTeamService(&mockTxRunner{stores: stores}, stores.teams, stores.conversations)
	})

	It("provisions the conversation on first open with the full membership", func() {
		var created *model.Conversation
		var participants []model.Participant
		stores.conversations.insertFn = func(_ context.Context, conv *model.Conversation, dmKey *string) error {
			Expect(dmKey).To(BeNil())
			created = conv
			return nil
		}
		stores.conversations.addParticipantsFn = func(_ context.Context, _ int64, ps []model.Participant) error {
			participants = ps
			return nil
		}

		conv, err := svc.OpenOrCreate(ctx, member, team.ID)

		Expect(err).NotTo(HaveOccurred())
		Expect(created).NotTo(BeNil())
		Expect(conv.Type).To(Equal(model.ConversationTypeTeam))
		Expect(*conv.TeamID).To(Equal(team.ID))
		Expect(*conv.Title).To(Equal(team.Name))
		Expect(participants).To(HaveLen(3))
		Expect(participants[0].UserID).To(Equal(member.ID))
		Expect(participants[0].Role).To(Equal(model.ParticipantRoleOwner))
	})

	It("returns the existing conversation and joins the opener to it", func() {
		existing := &model.Conversation{ID: 99, Type: model.ConversationTypeTeam}
		stores.conversations.getByTeamIDFn = func(_ context.Context, _ int64) (*model.Conversation, error) {
			return existing, nil
		}

		var joined []model.Participant
		stores.conversations.addParticipantsFn = func(_ context.Context, convID int64, ps []model.Participant) error {
			Expect(convID).To(Equal(existing.ID))
			joined = ps
			return nil
		}

		conv, err := svc.OpenOrCreate(ctx, member, team.ID)

		Expect(err).NotTo(HaveOccurred())
		Expect(conv.ID).To(Equal(existing.ID))
		Expect(stores.conversations.insertCalls).To(BeZero())
		Expect(joined).To(HaveLen(1))
		Expect(joined[0].UserID).To(Equal(member.ID))
		Expect(joined[0].Role).To(Equal(model.ParticipantRoleMember))
	})

	It("joins the winner's conversation when a concurrent open creates it first", func() {
		winner := &model.Conversation{ID: 101, Type: model.ConversationTypeTeam}
		created := false
		stores.conversations.insertFn = func(_ context.Context, _ *model.Conversation, _ *string) error {
			return store.ErrDuplicate
		}
		stores.conversations.getByTeamIDFn = func(_ context.Context, _ int64) (*model.Conversation, error) {
			if created {
				return winner, nil
			}
			created = true
			return nil, store.ErrNotFound
		}

		conv, err := svc.OpenOrCreate(ctx, member, team.ID)

		Expect(err).NotTo(HaveOccurred())
		Expect(conv.ID).To(Equal(winner.ID))
	})

	It("forbids non-members who are not admin or manager", func() {
		outsider := model.User{ID: 50, Role: model.RoleAgent, Active: true}

		_, err := svc.OpenOrCreate(ctx, outsider, team.ID)
		Expect(err).To(MatchError(service.ErrForbidden))
	})

	It("lets a manager open any team conversation", func() {
		manager := model.User{ID: 50, Role: model.RoleManager, Active: true}

		var participants []model.Participant
		stores.conversations.addParticipantsFn = func(_ context.Context, _ int64, ps []model.Participant) error {
			participants = ps
			return nil
		}

		_, err := svc.OpenOrCreate(ctx, manager, team.ID)

		Expect(err).NotTo(HaveOccurred())
		// The manager joins the set alongside the derived membership.
		Expect(participants).To(HaveLen(4))
	})

	It("returns not found for an unknown team", func() {
		stores.teams.getByIDFn = func(_ context.Context, _ int64) (*model.Team, error) {
			return nil, store.ErrNotFound
		}

		_, err := svc.OpenOrCreate(ctx, member, 999)
		Expect(err).To(MatchError(service.ErrNotFound))
	})
})
