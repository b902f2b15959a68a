package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"membergate/entity"
	"membergate/internal/config"
	"membergate/lib/clock"
)

const (
	collectionChats         = "chats"
	collectionUsers         = "users"
	collectionTargets       = "required_targets"
	collectionPending       = "pending_verifications"
	collectionCampaignLinks = "campaign_links"
	collectionCampaignJoins = "campaign_joins"
	collectionMemberEvents  = "member_events"
	collectionMembersDaily  = "members_daily"
	collectionChatUserIndex = "chat_user_index"
)

type MongoDB struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
}

func NewMongoClient(conf *config.Config) *MongoDB {
	if !conf.Mongo.Enabled {
		return nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		ctx:           context.Background(),
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
	}
	return client
}

func (m *MongoDB) connect() (*mongo.Client, error) {
	connection, err := mongo.Connect(m.ctx, m.clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	return connection, nil
}

func (m *MongoDB) disconnect(connection *mongo.Client) {
	_ = connection.Disconnect(m.ctx)
}

// --- chats ---

func (m *MongoDB) EnsureChat(chat entity.Chat) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	set := bson.D{}
	if chat.Kind != "" {
		set = append(set, bson.E{Key: "kind", Value: chat.Kind})
	}
	if chat.Title != "" {
		set = append(set, bson.E{Key: "title", Value: chat.Title})
	}
	update := bson.D{
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "telegram_id", Value: chat.TelegramId},
			{Key: "member_updates_seen", Value: false},
			{Key: "first_seen_at", Value: time.Now().UTC()},
		}},
	}
	if len(set) > 0 {
		update = append(update, bson.E{Key: "$set", Value: set})
	}

	collection := connection.Database(m.database).Collection(collectionChats)
	filter := bson.D{{Key: "telegram_id", Value: chat.TelegramId}}
	opts := options.Update().SetUpsert(true)
	_, err = collection.UpdateOne(m.ctx, filter, update, opts)
	return err
}

func (m *MongoDB) MarkMemberUpdatesSeen(chatId int64) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionChats)
	filter := bson.D{{Key: "telegram_id", Value: chatId}}
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "member_updates_seen", Value: true}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "telegram_id", Value: chatId}, {Key: "first_seen_at", Value: time.Now().UTC()}}},
	}
	opts := options.Update().SetUpsert(true)
	_, err = collection.UpdateOne(m.ctx, filter, update, opts)
	return err
}

func (m *MongoDB) MemberUpdatesSeen(chatId int64) (bool, error) {
	connection, err := m.connect()
	if err != nil {
		return false, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionChats)
	filter := bson.D{{Key: "telegram_id", Value: chatId}}
	var chat entity.Chat
	err = collection.FindOne(m.ctx, filter).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mongodb find: %w", err)
	}
	return chat.MemberUpdatesSeen, nil
}

// --- users ---

func (m *MongoDB) GetUser(userId int64) (*entity.User, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	filter := bson.D{{Key: "telegram_id", Value: userId}}
	var user entity.User
	err = collection.FindOne(m.ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	return &user, nil
}

// UpsertUser refreshes profile fields without ever touching the phone:
// the identity proof is captured once and only SetUserPhone writes it.
func (m *MongoDB) UpsertUser(user *entity.User) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	filter := bson.D{{Key: "telegram_id", Value: user.TelegramId}}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "username", Value: user.Username},
			{Key: "first_name", Value: user.FirstName},
			{Key: "last_name", Value: user.LastName},
			{Key: "last_seen", Value: time.Now().UTC()},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "telegram_id", Value: user.TelegramId},
			{Key: "first_seen", Value: time.Now().UTC()},
		}},
	}
	opts := options.Update().SetUpsert(true)
	_, err = collection.UpdateOne(m.ctx, filter, update, opts)
	return err
}

func (m *MongoDB) SetUserPhone(userId int64, phone string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	filter := bson.D{{Key: "telegram_id", Value: userId}}
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "phone", Value: phone}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "telegram_id", Value: userId}, {Key: "first_seen", Value: time.Now().UTC()}}},
	}
	opts := options.Update().SetUpsert(true)
	_, err = collection.UpdateOne(m.ctx, filter, update, opts)
	return err
}

// GetClientByToken authenticates an API client by bearer token.
func (m *MongoDB) GetClientByToken(token string) (*entity.User, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	filter := bson.D{{Key: "token", Value: token}}
	var user entity.User
	err = collection.FindOne(m.ctx, filter).Decode(&user)
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	return &user, nil
}

// --- pending verifications ---

func (m *MongoDB) UpsertPending(chatId, userId int64, deadline time.Time) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionPending)
	filter := bson.D{{Key: "chat_id", Value: chatId}, {Key: "user_id", Value: userId}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "chat_id", Value: chatId},
		{Key: "user_id", Value: userId},
		{Key: "deadline", Value: deadline.UTC()},
		{Key: "verified", Value: false},
	}}}
	opts := options.Update().SetUpsert(true)
	_, err = collection.UpdateOne(m.ctx, filter, update, opts)
	return err
}

func (m *MongoDB) GetPending(chatId, userId int64) (*entity.PendingVerification, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionPending)
	filter := bson.D{{Key: "chat_id", Value: chatId}, {Key: "user_id", Value: userId}}
	var pending entity.PendingVerification
	err = collection.FindOne(m.ctx, filter).Decode(&pending)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	return &pending, nil
}

// MarkVerified flips every live pending row (unverified, deadline still in
// the future) for the user and returns the affected chat ids.
func (m *MongoDB) MarkVerified(userId int64, now time.Time) ([]int64, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionPending)
	filter := bson.D{
		{Key: "user_id", Value: userId},
		{Key: "verified", Value: false},
		{Key: "deadline", Value: bson.D{{Key: "$gte", Value: now.UTC()}}},
	}

	update := bson.D{{Key: "$set", Value: bson.D{{Key: "verified", Value: true}}}}

	// one atomic flip per row: a row armed while we iterate is picked up
	// by the next pass and its chat still reported
	var chats []int64
	for {
		var row entity.PendingVerification
		err = collection.FindOneAndUpdate(m.ctx, filter, update).Decode(&row)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return chats, nil
		}
		if err != nil {
			return chats, fmt.Errorf("mongodb find and update: %w", err)
		}
		chats = append(chats, row.ChatId)
	}
}

// --- required targets ---

// AddTarget upserts a required target; re-adding the same (chat, target)
// pair refreshes join_url, added_by and added_at.
func (m *MongoDB) AddTarget(target *entity.RequiredTarget) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionTargets)
	filter := bson.D{{Key: "chat_id", Value: target.ChatId}, {Key: "target", Value: target.Target}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "chat_id", Value: target.ChatId},
		{Key: "target", Value: target.Target},
		{Key: "join_url", Value: target.JoinURL},
		{Key: "added_by", Value: target.AddedBy},
		{Key: "added_at", Value: time.Now().UTC()},
	}}}
	opts := options.Update().SetUpsert(true)
	_, err = collection.UpdateOne(m.ctx, filter, update, opts)
	return err
}

func (m *MongoDB) RemoveTarget(chatId int64, target string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionTargets)
	_, err = collection.DeleteOne(m.ctx, bson.D{{Key: "chat_id", Value: chatId}, {Key: "target", Value: target}})
	return err
}

func (m *MongoDB) ClearTargets(chatId int64) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionTargets)
	_, err = collection.DeleteMany(m.ctx, bson.D{{Key: "chat_id", Value: chatId}})
	return err
}

func (m *MongoDB) ListTargets(chatId int64) ([]*entity.RequiredTarget, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionTargets)
	filter := bson.D{{Key: "chat_id", Value: chatId}}
	opts := options.Find().SetSort(bson.D{{Key: "added_at", Value: 1}})
	cursor, err := collection.Find(m.ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(m.ctx)

	var targets []*entity.RequiredTarget
	if err = cursor.All(m.ctx, &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// --- campaigns ---

// CreateCampaignLink upserts by invite link so registering the same link
// again just relabels it.
func (m *MongoDB) CreateCampaignLink(link *entity.CampaignLink) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionCampaignLinks)
	filter := bson.D{{Key: "chat_id", Value: link.ChatId}, {Key: "invite_link", Value: link.InviteLink}}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "label", Value: link.Label},
			{Key: "created_by", Value: link.CreatedBy},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "id", Value: link.Id},
			{Key: "chat_id", Value: link.ChatId},
			{Key: "invite_link", Value: link.InviteLink},
			{Key: "created_at", Value: time.Now().UTC()},
		}},
	}
	opts := options.Update().SetUpsert(true)
	_, err = collection.UpdateOne(m.ctx, filter, update, opts)
	return err
}

func (m *MongoDB) ListCampaignLinks(chatId int64) ([]*entity.CampaignLink, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionCampaignLinks)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := collection.Find(m.ctx, bson.D{{Key: "chat_id", Value: chatId}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(m.ctx)

	var links []*entity.CampaignLink
	if err = cursor.All(m.ctx, &links); err != nil {
		return nil, err
	}
	return links, nil
}

func (m *MongoDB) FindCampaignExact(chatId int64, inviteLink string) (*entity.CampaignLink, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionCampaignLinks)
	filter := bson.D{{Key: "chat_id", Value: chatId}, {Key: "invite_link", Value: inviteLink}}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var link entity.CampaignLink
	err = collection.FindOne(m.ctx, filter, opts).Decode(&link)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	return &link, nil
}

// FindCampaignByCode matches a stored invite link by its trailing invite
// code, tolerating differing hosts and prefixes for the same invite.
func (m *MongoDB) FindCampaignByCode(chatId int64, code string) (*entity.CampaignLink, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionCampaignLinks)
	filter := bson.D{
		{Key: "chat_id", Value: chatId},
		{Key: "invite_link", Value: bson.D{{Key: "$regex", Value: regexp.QuoteMeta(code) + "$"}}},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var link entity.CampaignLink
	err = collection.FindOne(m.ctx, filter, opts).Decode(&link)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	return &link, nil
}

func (m *MongoDB) SaveCampaignJoin(join *entity.CampaignJoin) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionCampaignJoins)
	_, err = collection.InsertOne(m.ctx, join)
	return err
}

// TopCampaigns returns the attribution leaders for a chat since a cutoff.
func (m *MongoDB) TopCampaigns(chatId int64, since time.Time, limit int64) ([]*entity.CampaignCount, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionCampaignJoins)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "chat_id", Value: chatId},
			{Key: "happened_at", Value: bson.D{{Key: "$gte", Value: since.UTC()}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$label"},
			{Key: "joins", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "joins", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}
	cursor, err := collection.Aggregate(m.ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(m.ctx)

	var counts []*entity.CampaignCount
	if err = cursor.All(m.ctx, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

// --- ledger ---

func (m *MongoDB) IncJoin(chatId int64, day string) error {
	return m.incDaily(chatId, day, "joins")
}

func (m *MongoDB) IncLeave(chatId int64, day string) error {
	return m.incDaily(chatId, day, "leaves")
}

func (m *MongoDB) incDaily(chatId int64, day, field string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionMembersDaily)
	filter := bson.D{{Key: "chat_id", Value: chatId}, {Key: "day", Value: day}}
	update := bson.D{
		{Key: "$inc", Value: bson.D{{Key: field, Value: 1}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "chat_id", Value: chatId}, {Key: "day", Value: day}}},
	}
	opts := options.Update().SetUpsert(true)
	_, err = collection.UpdateOne(m.ctx, filter, update, opts)
	return err
}

func (m *MongoDB) RecordMemberEvent(ev *entity.MemberEvent) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionMemberEvents)
	_, err = collection.InsertOne(m.ctx, ev)
	return err
}

func (m *MongoDB) UpsertChatUserIndex(chatId, userId int64, isMember bool, at time.Time) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionChatUserIndex)
	filter := bson.D{{Key: "chat_id", Value: chatId}, {Key: "user_id", Value: userId}}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "is_member", Value: isMember},
			{Key: "last_seen_at", Value: at.UTC()},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "chat_id", Value: chatId},
			{Key: "user_id", Value: userId},
			{Key: "first_seen_at", Value: at.UTC()},
		}},
	}
	opts := options.Update().SetUpsert(true)
	_, err = collection.UpdateOne(m.ctx, filter, update, opts)
	return err
}

// GetLastDays returns the daily join/leave series for the last n days,
// newest first, zero-filled for days with no activity.
func (m *MongoDB) GetLastDays(chatId int64, days int) ([]*entity.DayStat, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	now := time.Now()
	keys := make([]string, 0, days)
	for i := 0; i < days; i++ {
		keys = append(keys, clock.DaysBack(now, i))
	}

	collection := connection.Database(m.database).Collection(collectionMembersDaily)
	filter := bson.D{{Key: "chat_id", Value: chatId}, {Key: "day", Value: bson.D{{Key: "$in", Value: keys}}}}
	cursor, err := collection.Find(m.ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(m.ctx)

	var rows []*entity.DayStat
	if err = cursor.All(m.ctx, &rows); err != nil {
		return nil, err
	}
	byDay := make(map[string]*entity.DayStat, len(rows))
	for _, row := range rows {
		byDay[row.Day] = row
	}

	result := make([]*entity.DayStat, 0, days)
	for _, key := range keys {
		if row, ok := byDay[key]; ok {
			result = append(result, row)
			continue
		}
		result = append(result, &entity.DayStat{Day: key})
	}
	return result, nil
}
