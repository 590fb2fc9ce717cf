// Package actions implements the Action Specialist: a tool-calling
// agent bound to the closed set of platform operations.
package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/cashsys/auction-chat/agent/contract"
	"github.com/cashsys/auction-chat/pkg/auctionapi"
)

// Action is one platform operation the specialist may perform. The set
// is closed at compile time; a tool call naming anything else is a
// schema violation, not a lookup miss.
type Action string

const (
	ActionListItems         Action = "get_all_catalogue_items"
	ActionCreateItem        Action = "create_catalogue_item"
	ActionSearchItems       Action = "search_catalogue_items"
	ActionGetItem           Action = "get_catalogue_item_by_id"
	ActionStartAuction      Action = "start_auction"
	ActionPlaceBid          Action = "place_bid"
	ActionGetWinner         Action = "get_auction_winner"
	ActionGetStatus         Action = "get_auction_status"
	ActionGetEndTime        Action = "get_auction_end_time"
	ActionGetPaymentReceipt Action = "get_payment_receipt"
	ActionGetPaymentHistory Action = "get_my_payment_history"
)

// ParseAction maps a tool call name onto the closed action set.
func ParseAction(name string) (Action, bool) {
	switch Action(name) {
	case ActionListItems, ActionCreateItem, ActionSearchItems, ActionGetItem,
		ActionStartAuction, ActionPlaceBid, ActionGetWinner, ActionGetStatus,
		ActionGetEndTime, ActionGetPaymentReceipt, ActionGetPaymentHistory:
		return Action(name), true
	default:
		return "", false
	}
}

// PlatformClient is the slice of the auction API the specialist needs.
// The production implementation is *auctionapi.Client.
type PlatformClient interface {
	ListItems(ctx context.Context, caller contractx.CallerContext) (json.RawMessage, error)
	CreateItem(ctx context.Context, caller contractx.CallerContext, in auctionapi.CreateItemInput) (json.RawMessage, error)
	SearchItems(ctx context.Context, caller contractx.CallerContext, keyword string) (json.RawMessage, error)
	GetItem(ctx context.Context, caller contractx.CallerContext, itemID int64) (json.RawMessage, error)
	StartAuction(ctx context.Context, caller contractx.CallerContext, catalogueID int64) (json.RawMessage, error)
	PlaceBid(ctx context.Context, caller contractx.CallerContext, catalogueID, bidAmount int64) (json.RawMessage, error)
	GetAuctionWinner(ctx context.Context, caller contractx.CallerContext, catalogueID int64) (json.RawMessage, error)
	GetAuctionStatus(ctx context.Context, caller contractx.CallerContext, catalogueID int64) (json.RawMessage, error)
	GetAuctionEndTime(ctx context.Context, caller contractx.CallerContext, catalogueID int64) (json.RawMessage, error)
	GetPaymentReceipt(ctx context.Context, caller contractx.CallerContext, paymentID string) (json.RawMessage, error)
	GetMyPaymentHistory(ctx context.Context, caller contractx.CallerContext) (json.RawMessage, error)
}

// dispatch executes one action against the platform. Argument parsing
// failures are schema violations; every action is matched exhaustively.
func dispatch(
	ctx context.Context,
	client PlatformClient,
	caller contractx.CallerContext,
	action Action,
	args map[string]any,
) (json.RawMessage, error) {
	switch action {
	case ActionListItems:
		return client.ListItems(ctx, caller)

	case ActionCreateItem:
		title, err := stringArg(args, "title")
		if err != nil {
			return nil, err
		}
		description, err := stringArg(args, "description")
		if err != nil {
			return nil, err
		}
		price, err := intArg(args, "startingPrice")
		if err != nil {
			return nil, err
		}
		duration, err := intArg(args, "durationHours")
		if err != nil {
			return nil, err
		}
		return client.CreateItem(ctx, caller, auctionapi.CreateItemInput{
			Title:         title,
			Description:   description,
			StartingPrice: price,
			DurationHours: duration,
		})

	case ActionSearchItems:
		keyword, err := stringArg(args, "keyword")
		if err != nil {
			return nil, err
		}
		return client.SearchItems(ctx, caller, keyword)

	case ActionGetItem:
		id, err := intArg(args, "item_id")
		if err != nil {
			return nil, err
		}
		return client.GetItem(ctx, caller, id)

	case ActionStartAuction:
		id, err := intArg(args, "catalogue_id")
		if err != nil {
			return nil, err
		}
		return client.StartAuction(ctx, caller, id)

	case ActionPlaceBid:
		id, err := intArg(args, "catalogue_id")
		if err != nil {
			return nil, err
		}
		amount, err := intArg(args, "bidAmount")
		if err != nil {
			return nil, err
		}
		return client.PlaceBid(ctx, caller, id, amount)

	case ActionGetWinner:
		id, err := intArg(args, "catalogue_id")
		if err != nil {
			return nil, err
		}
		return client.GetAuctionWinner(ctx, caller, id)

	case ActionGetStatus:
		id, err := intArg(args, "catalogue_id")
		if err != nil {
			return nil, err
		}
		return client.GetAuctionStatus(ctx, caller, id)

	case ActionGetEndTime:
		id, err := intArg(args, "catalogue_id")
		if err != nil {
			return nil, err
		}
		return client.GetAuctionEndTime(ctx, caller, id)

	case ActionGetPaymentReceipt:
		paymentID, err := stringArg(args, "payment_id")
		if err != nil {
			return nil, err
		}
		return client.GetPaymentReceipt(ctx, caller, paymentID)

	case ActionGetPaymentHistory:
		return client.GetMyPaymentHistory(ctx, caller)

	default:
		return nil, fmt.Errorf("%w: action=%s is not in the action set", contractx.ErrSchemaViolation, action)
	}
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: missing argument %s", contractx.ErrSchemaViolation, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: argument %s must be a string", contractx.ErrSchemaViolation, key)
	}
	return s, nil
}

func intArg(args map[string]any, key string) (int64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing argument %s", contractx.ErrSchemaViolation, key)
	}
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: argument %s must be an integer", contractx.ErrSchemaViolation, key)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: argument %s must be an integer", contractx.ErrSchemaViolation, key)
	}
}

// toolInfos declares the action set to the model. Descriptions mirror
// the platform API surface.
func toolInfos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: string(ActionListItems),
			Desc: "Fetch all items in the catalogue.",
		},
		{
			Name: string(ActionCreateItem),
			Desc: "Create a new item in the catalogue.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"title":         {Type: schema.String, Desc: "Title of the item", Required: true},
				"description":   {Type: schema.String, Desc: "Description of the item", Required: true},
				"startingPrice": {Type: schema.Integer, Desc: "Starting price for the auction", Required: true},
				"durationHours": {Type: schema.Integer, Desc: "Duration of the auction in hours", Required: true},
			}),
		},
		{
			Name: string(ActionSearchItems),
			Desc: "Search catalogue items by keyword in title.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"keyword": {Type: schema.String, Desc: "Search keyword to filter items by title", Required: true},
			}),
		},
		{
			Name: string(ActionGetItem),
			Desc: "Fetch a single catalogue item by ID.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"item_id": {Type: schema.Integer, Desc: "The ID of the catalogue item", Required: true},
			}),
		},
		{
			Name: string(ActionStartAuction),
			Desc: "Start an auction for a catalogue item.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"catalogue_id": {Type: schema.Integer, Desc: "The ID of the catalogue item", Required: true},
			}),
		},
		{
			Name: string(ActionPlaceBid),
			Desc: "Place a bid on an auction for a catalogue item.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"catalogue_id": {Type: schema.Integer, Desc: "The ID of the catalogue item", Required: true},
				"bidAmount":    {Type: schema.Integer, Desc: "The amount to bid", Required: true},
			}),
		},
		{
			Name: string(ActionGetWinner),
			Desc: "Get the winner of a completed auction.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"catalogue_id": {Type: schema.Integer, Desc: "The ID of the catalogue item", Required: true},
			}),
		},
		{
			Name: string(ActionGetStatus),
			Desc: "Get the status of an auction for a catalogue item.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"catalogue_id": {Type: schema.Integer, Desc: "The ID of the catalogue item", Required: true},
			}),
		},
		{
			Name: string(ActionGetEndTime),
			Desc: "Get the end time of an auction for a catalogue item.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"catalogue_id": {Type: schema.Integer, Desc: "The ID of the catalogue item", Required: true},
			}),
		},
		{
			Name: string(ActionGetPaymentReceipt),
			Desc: "Retrieve payment details and receipt information by payment ID.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"payment_id": {Type: schema.String, Desc: "The ID of the payment", Required: true},
			}),
		},
		{
			Name: string(ActionGetPaymentHistory),
			Desc: "Returns payment history for the authenticated user.",
		},
	}
}
