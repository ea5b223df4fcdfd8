package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"reflect"

	"github.com/golang-jwt/jwt/v4"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	authz "github.com/hanpama/opgraph/internal/authz"
	callbacks "github.com/hanpama/opgraph/internal/callbacks"
	dsl "github.com/hanpama/opgraph/internal/dsl"
	engine "github.com/hanpama/opgraph/internal/engine"
	protoext "github.com/hanpama/opgraph/internal/ext/protoext"
	redisext "github.com/hanpama/opgraph/internal/ext/redisext"
	sqlext "github.com/hanpama/opgraph/internal/ext/sqlext"
	operation "github.com/hanpama/opgraph/internal/operation"
	types "github.com/hanpama/opgraph/internal/types"
)

// Pet is a document of the "pets" collection.
type Pet struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Species string   `json:"species,omitempty"`
	OwnerID int64    `json:"owner_id,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Owner is a row of the owners table.
type Owner struct {
	ID    int64          `db:"id"`
	Name  string         `db:"full_name"`
	Email sql.NullString `db:"email"`
}

// catalog holds the backends the served schema is built from. Each of them
// is optional.
type catalog struct {
	pets     *redisext.Extension
	owners   *sqlext.Extension
	remote   *protoext.Extension
	messages []protoreflect.MessageDescriptor
}

func (c *catalog) install(reg *types.Registry) error {
	if c.owners != nil {
		if err := c.owners.Register("owners", Owner{}); err != nil {
			return err
		}
		if err := c.owners.Install(reg); err != nil {
			return err
		}
	}
	if c.pets != nil {
		if err := c.pets.Register("pets", Pet{}); err != nil {
			return err
		}
		if err := reg.AddExtension(c.pets); err != nil {
			return err
		}
	}
	if c.remote != nil {
		if err := reg.AddExtension(c.remote); err != nil {
			return err
		}
	}
	return nil
}

// loadServices registers every service of the descriptor set at path with
// ext and returns the messages they can load.
func loadServices(ext *protoext.Extension, path string) ([]protoreflect.MessageDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	files, err := protodesc.NewFiles(&set)
	if err != nil {
		return nil, fmt.Errorf("link %s: %w", path, err)
	}
	var out []protoreflect.MessageDescriptor
	files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		for i := 0; i < fd.Services().Len(); i++ {
			var mds []protoreflect.MessageDescriptor
			mds, err = ext.RegisterService(fd.Services().Get(i))
			if err != nil {
				return false
			}
			out = append(out, mds...)
		}
		return true
	})
	return out, err
}

func (c *catalog) declare(e *engine.Engine) error {
	ops := e.Operations()
	policy := authz.New(abilityFor)
	authz.CheckAuthorization(ops.Callbacks())
	authz.SkipAuthorizationCheck(ops.Callbacks(), callbacks.If(func(oc *operation.Context) bool {
		return oc.Kind == operation.KindQuery
	}))

	if err := ops.Query("version", reflect.TypeOf(""), func(d *dsl.Definition) {
		d.Description("Version of the running server.")
		d.Resolve(func(*operation.Context) (any, error) { return version, nil })
	}); err != nil {
		return err
	}

	if c.owners != nil {
		if err := lookupQuery(e, "owner", reflect.TypeOf(Owner{})); err != nil {
			return err
		}
	}
	if c.pets != nil {
		if err := lookupQuery(e, "pet", reflect.TypeOf(Pet{})); err != nil {
			return err
		}
		if err := ops.Query("pets", []any{types.Required(reflect.TypeOf(Pet{}))}, func(d *dsl.Definition) {
			d.Resolve(func(oc *operation.Context) (any, error) {
				return c.pets.List(oc.Context(), Pet{})
			})
		}); err != nil {
			return err
		}
		if err := ops.Mutation("rename_pet", dsl.Fields{{Name: "pet", Type: reflect.TypeOf(Pet{})}}, func(d *dsl.Definition) {
			d.Description("Renames a pet. Allowed for its owner and for admins.")
			d.Argument("id", reflect.TypeOf(types.ID("")), dsl.Required)
			d.Argument("name", reflect.TypeOf(""), dsl.Required)
			d.Resolve(func(oc *operation.Context) (any, error) {
				return c.renamePet(oc, policy)
			})
		}); err != nil {
			return err
		}
	}
	for _, md := range c.messages {
		if err := lookupQuery(e, string(md.Name())+"_by_id", md); err != nil {
			return err
		}
	}
	return nil
}

func (c *catalog) renamePet(oc *operation.Context, policy *authz.Policy) (any, error) {
	ctx := oc.Context()
	id, _ := oc.Arg("id")
	name, _ := oc.Arg("name")
	doc, err := c.pets.Load(ctx, Pet{}, fmt.Sprint(id))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, operation.Errorf("No pet with id %v", id)
	}
	pet := doc.(*Pet)
	if err := policy.Authorize(oc, "update", pet); err != nil {
		return nil, err
	}
	pet.Name = fmt.Sprint(name)
	if err := c.pets.Save(ctx, pet); err != nil {
		return nil, err
	}
	return dsl.Result{"pet": pet}, nil
}

// lookupQuery declares name(id: ID!) returning the object typ resolves to,
// loaded through the registry's extensions.
func lookupQuery(e *engine.Engine, name string, typ any) error {
	ref, err := e.Types().Resolve(typ, false)
	if err != nil {
		return err
	}
	typeName := ref.NamedDef().Name
	return e.Operations().Query(name, typ, func(d *dsl.Definition) {
		d.Description(fmt.Sprintf("Loads the %s with the given id.", typeName))
		d.Argument("id", reflect.TypeOf(types.ID("")), dsl.Required)
		d.Resolve(func(oc *operation.Context) (any, error) {
			id, _ := oc.Arg("id")
			return e.Types().Lookup(oc.Context(), typeName, fmt.Sprint(id))
		})
	})
}

// abilityFor grants admins everything and lets token holders update the pets
// of the owner named by their owner_id claim.
func abilityFor(user any) authz.Ability {
	claims, ok := user.(jwt.MapClaims)
	if !ok {
		return nil
	}
	return authz.AbilityFunc(func(action string, subject any) bool {
		if claims["role"] == "admin" {
			return true
		}
		pet, ok := subject.(*Pet)
		if !ok || action != "update" {
			return false
		}
		owner, _ := claims["owner_id"].(float64)
		return pet.OwnerID != 0 && int64(owner) == pet.OwnerID
	})
}

// seed stores a few pets when the collection is empty.
func seed(ctx context.Context, pets *redisext.Extension) error {
	existing, err := pets.List(ctx, Pet{})
	if err != nil || len(existing) > 0 {
		return err
	}
	for _, p := range []*Pet{
		{ID: "1", Name: "Tom", Species: "cat", OwnerID: 1, Tags: []string{"indoor"}},
		{ID: "2", Name: "Rex", Species: "dog", OwnerID: 2},
	} {
		if err := pets.Save(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
