package service

import "go.opentelemetry.io/otel/attribute"

var (
	attrTransactionID = attribute.Key("twocheck.transaction_id")
	attrTargetState   = attribute.Key("twocheck.target_state")
	attrActor         = attribute.Key("twocheck.actor")
)
