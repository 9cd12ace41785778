package query

// Re-export read models from readmodel package for convenience
import "github.com/example/coldchain-ledger/internal/readmodel"

type ProductReadModel = readmodel.ProductReadModel
type CustodyEventReadModel = readmodel.CustodyEventReadModel
type ShipmentReadModel = readmodel.ShipmentReadModel
type UserReadModel = readmodel.UserReadModel
