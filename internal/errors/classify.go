package errors

import (
	goerrors "errors"
)

type transient interface {
	Transient()
}

type permanent interface {
	Permanent()
}

type overflow interface {
	Overflow()
}

type stopped interface {
	Stopped()
}

type configuration interface {
	Configuration()
}

type validation interface {
	Validation()
}

type delivery interface {
	Delivery()
}

func IsTransient(err error) bool {
	var target transient
	return goerrors.As(err, &target)
}

func IsPermanent(err error) bool {
	var target permanent
	return goerrors.As(err, &target)
}

func IsOverflow(err error) bool {
	var target overflow
	return goerrors.As(err, &target)
}

func IsStopped(err error) bool {
	var target stopped
	return goerrors.As(err, &target)
}

func IsConfiguration(err error) bool {
	var target configuration
	return goerrors.As(err, &target)
}

func IsValidation(err error) bool {
	var target validation
	return goerrors.As(err, &target)
}

func IsDelivery(err error) bool {
	var target delivery
	return goerrors.As(err, &target)
}
