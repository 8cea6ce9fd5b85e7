// Package factories builds realistic fixture data for the fixtures command
// and for tests.
package factories

import "github.com/jaswdr/faker"

var fake = faker.New()
