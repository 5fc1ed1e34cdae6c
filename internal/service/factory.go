package service

import (
	"opsdeck.app/chat/internal/events"
	"opsdeck.app/chat/internal/store"
)

type Services struct {
	stores   *store.Stores
	txRunner TxRunner
	producer events.Producer
}

func NewServices(stores *store.Stores, txRunner TxRunner, producer events.Producer) *Services {
	return &Services{
		stores:   stores,
		txRunner: txRunner,
		producer: producer,
	}
}

func (s *Services) Conversations() ConversationService {
	return NewConversationService(
		s.txRunner,
		s.stores.Users(),
		s.stores.Clients(),
		s.stores.Conversations(),
		s.stores.Messages(),
		s.producer,
	)
}

func (s *Services) Roster() RosterService {
	return NewRosterService(s.stores.Users(), s.stores.Clients())
}

func (s *Services) Teams() TeamService {
	return NewTeamService(s.txRunner, s.stores.Teams(), s.stores.Conversations())
}

func (s *Services) Forwards() ForwardService {
	return NewForwardService(
		s.stores.Users(),
		s.stores.Clients(),
		s.stores.Conversations(),
		s.stores.Messages(),
		s.Conversations(),
		s.producer,
	)
}
