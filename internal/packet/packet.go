package packet

import (
	"fmt"
	"math"
)

const (
	Magic byte = 0x13

	HeaderSize  = 21
	TrailerSize = 2
	Overhead    = HeaderSize + TrailerSize

	// ErrorSequence tags replies the server synthesizes for frames it could not decode.
	ErrorSequence uint64 = math.MaxUint64
)

type Status int32

const (
	StatusClient           Status = 1
	StatusSuccess          Status = 2
	StatusFailure          Status = 3
	StatusError            Status = 4
	StatusUnknownOperation Status = 5
)

func (s Status) String() string {
	switch s {
	case StatusClient:
		return "CLIENT"
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	case StatusError:
		return "ERROR"
	case StatusUnknownOperation:
		return "UNKNOWN_OPERATION"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

type Command int32

const (
	CommandUnknown Command = iota
	CommandInsertGroup
	CommandInsertProduct
	CommandGetGroups
	CommandGetProducts
	CommandUpdateGroup
	CommandUpdateProduct
	CommandDeleteGroup
	CommandDeleteProduct
	CommandGetGroupsByFilter
	CommandGetProductsByFilter
	CommandGetGroupByID
	CommandGetProductByID
	CommandDeleteGroupByID
	CommandDeleteProductByID
	CommandDeleteGroupsByIDs
	CommandDeleteProductsByIDs
	CommandGetProductsInnerJoinGroups
	CommandGetProductsInnerJoinGroupsByFilter
	CommandIncreaseProductQuantity
	CommandIncreaseProductsQuantity
	CommandDecreaseProductQuantity
	CommandStop
)

var commandNames = [...]string{
	CommandUnknown:                            "UNKNOWN",
	CommandInsertGroup:                        "INSERT_GROUP",
	CommandInsertProduct:                      "INSERT_PRODUCT",
	CommandGetGroups:                          "GET_GROUPS",
	CommandGetProducts:                        "GET_PRODUCTS",
	CommandUpdateGroup:                        "UPDATE_GROUP",
	CommandUpdateProduct:                      "UPDATE_PRODUCT",
	CommandDeleteGroup:                        "DELETE_GROUP",
	CommandDeleteProduct:                      "DELETE_PRODUCT",
	CommandGetGroupsByFilter:                  "GET_GROUPS_BY_FILTER",
	CommandGetProductsByFilter:                "GET_PRODUCTS_BY_FILTER",
	CommandGetGroupByID:                       "GET_GROUP_BY_ID",
	CommandGetProductByID:                     "GET_PRODUCT_BY_ID",
	CommandDeleteGroupByID:                    "DELETE_GROUP_BY_ID",
	CommandDeleteProductByID:                  "DELETE_PRODUCT_BY_ID",
	CommandDeleteGroupsByIDs:                  "DELETE_GROUPS_BY_IDS",
	CommandDeleteProductsByIDs:                "DELETE_PRODUCTS_BY_IDS",
	CommandGetProductsInnerJoinGroups:         "GET_PRODUCTS_INNER_JOIN_GROUPS",
	CommandGetProductsInnerJoinGroupsByFilter: "GET_PRODUCTS_INNER_JOIN_GROUPS_BY_FILTER",
	CommandIncreaseProductQuantity:            "INCREASE_PRODUCT_QUANTITY",
	CommandIncreaseProductsQuantity:           "INCREASE_PRODUCTS_QUANTITY",
	CommandDecreaseProductQuantity:            "DECREASE_PRODUCT_QUANTITY",
	CommandStop:                               "STOP",
}

func (c Command) String() string {
	if c >= 0 && int(c) < len(commandNames) {
		return commandNames[c]
	}
	return fmt.Sprintf("Command(%d)", int32(c))
}

// ParseCommand maps a wire name such as "GET_GROUPS" back to its code.
func ParseCommand(name string) (Command, bool) {
	for i, n := range commandNames {
		if n == name {
			return Command(i), true
		}
	}
	return CommandUnknown, false
}

// Packet is the decoded form of one frame. Payload is opaque to the codec.
type Packet struct {
	Sequence uint64
	Status   Status
	Command  Command
	Payload  string
}

func (p Packet) Reply(status Status, payload string) Packet {
	p.Status = status
	p.Payload = payload
	return p
}
