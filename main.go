package main

import (
	"context"

	"github.com/rs/zerolog/log"
	actionsx "github.com/cashsys/auction-chat/agent/actions"
	dbschemax "github.com/cashsys/auction-chat/agent/dbschema"
	llmx "github.com/cashsys/auction-chat/agent/llm"
	promptx "github.com/cashsys/auction-chat/agent/prompt"
	queryx "github.com/cashsys/auction-chat/agent/query"
	statex "github.com/cashsys/auction-chat/agent/state"
	supervisorx "github.com/cashsys/auction-chat/agent/supervisor"
	"github.com/cashsys/auction-chat/pkg/auctionapi"
	configx "github.com/cashsys/auction-chat/pkg/config"
	_ "github.com/cashsys/auction-chat/pkg/logger/autoload"
	openrouterx "github.com/cashsys/auction-chat/pkg/openrouter"
	serverx "github.com/cashsys/auction-chat/server"
)

func main() {
	ctx := context.Background()

	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	if err := llmCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid llm config")
	}

	prompts := promptx.LoadPromptSet()
	schemas := dbschemax.Load()

	pipeline := buildQueryPipeline(ctx, llmCfg, prompts, schemas)
	specialist := buildSpecialist(ctx, llmCfg, prompts)

	routerBuilder := llmCfg.OpenRouterFor(llmx.RoleRouter)
	routerModel, err := routerBuilder.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("create router model")
	}
	router, err := supervisorx.NewRouter(ctx, routerModel, prompts.Router)
	if err != nil {
		log.Fatal().Err(err).Msg("create router")
	}

	sup, err := supervisorx.New(specialist, router, pipeline)
	if err != nil {
		log.Fatal().Err(err).Msg("create supervisor")
	}

	srv, err := serverx.New(buildSessionStore(), sup)
	if err != nil {
		log.Fatal().Err(err).Msg("create server")
	}

	srvCfg := configx.MustNew[serverx.Config]("SERVER")
	if err := srv.ListenAndServe(*srvCfg); err != nil {
		log.Fatal().Err(err).Msg("chat server stopped")
	}
}

func buildQueryPipeline(
	ctx context.Context,
	llmCfg *llmx.Config,
	prompts promptx.PromptSet,
	schemas dbschemax.SchemaSet,
) *queryx.Pipeline {
	builder := llmCfg.OpenRouterFor(llmx.RoleQuery)

	// Each stage gets its own model instance so the validator's verdict
	// comes from a separate invocation path than the synthesizer's plan.
	selectorModel, err := builder.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("create selector model")
	}
	synthesizerModel, err := builder.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("create synthesizer model")
	}
	validatorClient := openrouterx.NewClient(builder)
	if validatorClient == nil {
		log.Fatal().Msg("create validator oracle client")
	}

	selector, err := queryx.NewSelector(ctx, selectorModel, prompts.Selector)
	if err != nil {
		log.Fatal().Err(err).Msg("create partition selector")
	}
	synthesizer, err := queryx.NewSynthesizer(ctx, synthesizerModel, prompts.Synthesizer, schemas)
	if err != nil {
		log.Fatal().Err(err).Msg("create query synthesizer")
	}
	validator, err := queryx.NewValidator(validatorClient, builder.Model, prompts.Validator, schemas)
	if err != nil {
		log.Fatal().Err(err).Msg("create query validator")
	}

	dbCfg := configx.MustNew[queryx.DBConfig]("DB")
	runner := queryx.NewBunRunner(*dbCfg)
	executor := queryx.NewExecutor(runner)

	pipeline, err := queryx.NewPipeline(selector, synthesizer, validator, executor)
	if err != nil {
		log.Fatal().Err(err).Msg("create query pipeline")
	}
	return pipeline
}

func buildSpecialist(ctx context.Context, llmCfg *llmx.Config, prompts promptx.PromptSet) *actionsx.Specialist {
	builder := llmCfg.OpenRouterFor(llmx.RoleSpecialist)
	specialistModel, err := builder.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("create specialist model")
	}

	apiCfg := configx.MustNew[auctionapi.Config]("AUCTION_API")
	apiClient := auctionapi.MustNew(*apiCfg)

	specialist, err := actionsx.NewSpecialist(specialistModel, apiClient, prompts.Specialist)
	if err != nil {
		log.Fatal().Err(err).Msg("create action specialist")
	}
	return specialist
}

// buildSessionStore prefers Upstash Redis and falls back to process
// memory when no endpoint is configured.
func buildSessionStore() statex.Store {
	redisCfg, err := configx.New[statex.UpstashRedisConfig]("UPSTASH_REDIS")
	if err != nil {
		log.Warn().Err(err).Msg("redis not configured, sessions are in-memory only")
		return statex.NewMemoryStore()
	}

	store, err := statex.NewUpstashRedisStore(*redisCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create redis session store")
	}
	return store
}
