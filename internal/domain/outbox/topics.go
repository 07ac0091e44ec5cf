package outbox

const (
	TopicOrderRequested         = "order-requested"
	TopicCheckOrder             = "check-order"
	TopicAcceptedOrder          = "accepted-order"
	TopicRejectedOrder          = "rejected-order"
	TopicStockDeducted          = "stock-deducted"
	TopicStockRecovered         = "stock-recovered"
	TopicRequestedCancelPayment = "requested-cancel-payment"
	TopicCreatedPayment         = "created-payment"
	TopicSucceededPayment       = "succeeded-payment"
	TopicFailedPayment          = "failed-payment"
	TopicCanceledPayment        = "canceled-payment"
	TopicCreatedProduct         = "created-product"
	TopicUpdatedProduct         = "updated-product"
	TopicDeletedProduct         = "deleted-product"
)
